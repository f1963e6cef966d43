package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
)

// Logger is the logging surface the client needs. *logging.Logger and
// *slog.Logger satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is a paho connection owned by one bridge.
//
// It publishes the bridge's retained presence on the status topic, restores
// subscriptions after a reconnect and recovers panicking handlers.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	topics   Topics
	clientID string

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	onConnect      func()
	onReconnecting func()
	callbackMu     sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	now func() time.Time
}

// Connect builds a client for bridgeID and performs the initial connection.
// It fails when the broker is not reachable in time; the client is closed
// and does not keep retrying.
func Connect(cfg config.MQTTConfig, bridgeID string) (*Client, error) {
	c := New(cfg, bridgeID)
	if err := c.Start(); err != nil {
		//nolint:errcheck // already failing
		c.Close()
		return nil, err
	}
	return c, nil
}

// New builds a client without connecting, so callbacks can be registered
// before the first connection.
func New(cfg config.MQTTConfig, bridgeID string) *Client {
	c := &Client{
		cfg:           cfg,
		topics:        NewTopics(cfg.TopicPrefix, bridgeID),
		clientID:      cfg.Broker.ClientID,
		subscriptions: make(map[string]subscription),
		now:           time.Now,
	}

	opts := buildClientOptions(cfg, c.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) { c.handleReconnecting() })

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Start performs the initial connection. Later reconnects are driven by
// paho in the background.
//
// ErrConnectPending means the broker did not answer within the connect
// timeout. paho keeps dialling until Close, and the OnConnect callback
// fires once the broker is reachable.
func (c *Client) Start() error {
	wait := dialTimeout(c.cfg.Broker)
	token := c.client.Connect()
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("%w: %s: no answer after %v", ErrConnectPending, brokerURL(c.cfg.Broker), wait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(c.cfg.Broker), err)
	}

	// The OnConnect handler runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return nil
}

// Close announces a clean shutdown on the status topic and disconnects.
// Safe to call on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.Status(), statusQoS, true, c.status(StatusOffline, ReasonShutdown).Encode())
		token.WaitTimeout(operationTimeout)
	}

	c.client.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// Topics returns the topic builders for this bridge.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect sets the callback fired on the initial connection and on
// every reconnect, after subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnReconnecting sets the callback fired before every reconnection attempt.
func (c *Client) SetOnReconnecting(callback func()) {
	c.callbackMu.Lock()
	c.onReconnecting = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger. Without one, handler failures are silent.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) status(status, reason string) Status {
	return newStatus(status, reason, c.topics.BridgeID, c.clientID, c.now())
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.subMu.RLock()
	for topic, sub := range c.subscriptions {
		// Errors surface again on the next reconnect.
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	c.client.Publish(c.topics.Status(), statusQoS, true, c.status(StatusOnline, "").Encode())

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "broker", brokerURL(c.cfg.Broker), "error", err)
	}
}

func (c *Client) handleReconnecting() {
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT reconnecting", "broker", brokerURL(c.cfg.Broker))
	}

	c.callbackMu.RLock()
	callback := c.onReconnecting
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// wrapHandler adapts a MessageHandler to paho, recovering panics and
// logging returned errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
