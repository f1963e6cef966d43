package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
)

// WebSocket defaults applied when options leave a field unset.
const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultMaxMessageSize   = 8192
	defaultReconnectInitial = 1 * time.Second
	defaultReconnectMax     = 30 * time.Second

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
)

// WebSocketOptions configures a WebSocketClient.
type WebSocketOptions struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	MaxMessageSize   int64
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// MaxAttempts is the number of consecutive failed dials before the
	// client gives up. 0 retries forever.
	MaxAttempts int
}

// WebSocketOptionsFromConfig converts the YAML settings.
func WebSocketOptionsFromConfig(cfg config.WebSocketConfig) WebSocketOptions {
	return WebSocketOptions{
		URL:              cfg.URL,
		HandshakeTimeout: time.Duration(cfg.HandshakeTime) * time.Second,
		PingInterval:     time.Duration(cfg.PingInterval) * time.Second,
		PongTimeout:      time.Duration(cfg.PongTimeout) * time.Second,
		MaxMessageSize:   int64(cfg.MaxMessageSize),
		ReconnectInitial: time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		ReconnectMax:     time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
		MaxAttempts:      cfg.Reconnect.MaxAttempts,
	}
}

// WebSocketClient is a Channel over a WebSocket connection to the ground
// station. Every event travels as a JSON Message in one text frame.
//
// Thread Safety:
//   - Emit, Send, IsConnected and Stats are safe for concurrent use.
//   - Handlers and lifecycle callbacks run on the read goroutine. They may
//     call Emit but must not call Close.
type WebSocketClient struct {
	opts   WebSocketOptions
	dialer *websocket.Dialer
	reg    *registry

	connMu sync.RWMutex
	conn   *websocket.Conn

	// gorilla allows one concurrent writer per connection.
	writeMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	closed      atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	messagesTx  atomic.Uint64
	messagesRx  atomic.Uint64
	reconnects  atomic.Uint64
	lastConnect atomic.Int64
}

// NewWebSocketClient validates opts and returns an unconnected client.
func NewWebSocketClient(opts WebSocketOptions) (*WebSocketClient, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("channel: parsing websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("channel: websocket url scheme must be ws or wss, got %q", u.Scheme)
	}

	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = defaultReconnectInitial
	}
	if opts.ReconnectMax < opts.ReconnectInitial {
		opts.ReconnectMax = max(defaultReconnectMax, opts.ReconnectInitial)
	}

	return &WebSocketClient{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		reg: newRegistry(),
	}, nil
}

// Connect starts the connection loop in the background and returns
// immediately. Dial failures are retried with exponential backoff.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
	return nil
}

// On registers a handler for an inbound event.
func (c *WebSocketClient) On(event string, h Handler) { c.reg.on(event, h) }

// OnConnect registers a callback fired on every (re)connection.
func (c *WebSocketClient) OnConnect(fn func()) { c.reg.addOnConnect(fn) }

// OnReconnect registers a callback fired after a reconnection.
func (c *WebSocketClient) OnReconnect(fn func(attempt int)) { c.reg.addOnReconnect(fn) }

// SetLogger sets the logger for this client.
func (c *WebSocketClient) SetLogger(logger Logger) { c.reg.setLogger(logger) }

// Emit sends event with data as a JSON Message.
func (c *WebSocketClient) Emit(event string, data any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	msg, err := NewMessage(event, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("channel: encoding %s: %w", event, err)
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	//nolint:errcheck // A failed deadline surfaces as a write error
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, raw)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("channel: writing %s: %w", event, err)
	}

	c.messagesTx.Add(1)
	return nil
}

// Send emits text as an EventMessage.
func (c *WebSocketClient) Send(text string) error {
	return c.Emit(EventMessage, text)
}

// IsConnected reports whether a connection is currently established.
func (c *WebSocketClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// Stats returns channel counters.
func (c *WebSocketClient) Stats() Stats {
	s := Stats{
		Connected:  c.IsConnected(),
		MessagesTx: c.messagesTx.Load(),
		MessagesRx: c.messagesRx.Load(),
		Reconnects: c.reconnects.Load(),
	}
	if ts := c.lastConnect.Load(); ts > 0 {
		s.LastConnect = time.Unix(0, ts)
	}
	return s
}

// Close stops the connection loop and closes the socket.
func (c *WebSocketClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.lifecycleMu.Lock()
	cancel := c.cancel
	c.lifecycleMu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn != nil {
		//nolint:errcheck // Best-effort close frame
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// run dials, serves and redials until ctx is cancelled.
func (c *WebSocketClient) run(ctx context.Context) {
	backoff := c.opts.ReconnectInitial
	connectedBefore := false
	attempt := 0

	for ctx.Err() == nil {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			if c.opts.MaxAttempts > 0 && attempt >= c.opts.MaxAttempts {
				c.logError("websocket giving up", err, "attempts", attempt)
				return
			}
			c.logWarn("websocket dial failed", "error", err, "attempt", attempt, "backoff", backoff.String())

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.opts.ReconnectMax)
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.lastConnect.Store(time.Now().UnixNano())
		c.logInfo("websocket connected", "url", c.opts.URL, "attempt", attempt)

		c.reg.fireConnect()
		if connectedBefore {
			c.reconnects.Add(1)
			c.reg.fireReconnect(attempt)
		}
		connectedBefore = true
		attempt = 0
		backoff = c.opts.ReconnectInitial

		c.serve(ctx, conn)

		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		//nolint:errcheck // Connection already finished
		conn.Close()

		if ctx.Err() == nil {
			c.logWarn("websocket connection lost, reconnecting", "url", c.opts.URL)
		}
	}
}

func (c *WebSocketClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// serve reads frames until the connection fails or ctx is cancelled.
func (c *WebSocketClient) serve(ctx context.Context, conn *websocket.Conn) {
	readWait := c.opts.PingInterval + c.opts.PongTimeout

	conn.SetReadLimit(c.opts.MaxMessageSize)
	//nolint:errcheck // Deadline errors surface on the next read
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck // Unblocks ReadMessage
		conn.Close()
	})
	defer stop()

	pingDone := make(chan struct{})
	var pingWG sync.WaitGroup
	pingWG.Add(1)
	go func() {
		defer pingWG.Done()
		c.pingLoop(conn, pingDone)
	}()
	defer func() {
		close(pingDone)
		pingWG.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logError("websocket read error", err)
			}
			return
		}
		//nolint:errcheck // Deadline errors surface on the next read
		conn.SetReadDeadline(time.Now().Add(readWait))
		c.messagesRx.Add(1)
		c.handleFrame(data)
	}
}

func (c *WebSocketClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with WriteMessage.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleFrame(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		c.logWarn("websocket dropped frame", "error", err)
		return
	}
	if !c.reg.dispatch(msg.Event, msg.Data) {
		c.logDebug("websocket event without handler", "event", msg.Event)
	}
}

func (c *WebSocketClient) logDebug(msg string, keysAndValues ...any) {
	if l := c.reg.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *WebSocketClient) logInfo(msg string, keysAndValues ...any) {
	if l := c.reg.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *WebSocketClient) logWarn(msg string, keysAndValues ...any) {
	if l := c.reg.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *WebSocketClient) logError(msg string, err error, keysAndValues ...any) {
	if l := c.reg.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
