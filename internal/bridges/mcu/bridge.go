package mcu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/edusat-bridge/internal/channel"
	"github.com/nerrad567/edusat-bridge/internal/device"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
	"github.com/nerrad567/edusat-bridge/internal/state"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// Retry defaults used when the serial retry config leaves them unset.
const (
	defaultRetryInitial = 1 * time.Second
	defaultRetryMax     = 60 * time.Second
)

// Channel is the network side of the bridge.
// Satisfied by *channel.WebSocketClient and *channel.MQTTChannel.
type Channel interface {
	On(event string, h channel.Handler)
	OnConnect(fn func())
	OnReconnect(fn func(attempt int))
	Emit(event string, data any) error
	Send(text string) error
	IsConnected() bool
}

// Device is an open serial link to the MCU. Satisfied by *device.Port.
type Device interface {
	state.DeviceView

	// Send writes an operator command to the MCU.
	Send(command string) error

	// Pump copies device bytes into w until ctx is cancelled or the device fails.
	Pump(ctx context.Context, w io.Writer) error

	// Close releases the port. Safe to call multiple times.
	Close() error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded configuration.
	Config *config.Config

	// Store is the shared state store.
	Store *state.Store

	// Channel is the network transport.
	Channel Channel

	// Parser decodes device bytes. Built from Config.Protocol when nil.
	Parser *telemetry.Parser

	// Discover lists serial ports. Defaults to device.Discover.
	Discover func(ctx context.Context) ([]device.Descriptor, error)

	// Open opens a serial port. Defaults to device.Open with Config.Serial.
	Open func(path string) (Device, error)

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge keeps the MCU, the state store and the network channel in sync.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg         *config.Config
	store       *state.Store
	channel     Channel
	parser      *telemetry.Parser
	discover    func(ctx context.Context) ([]device.Descriptor, error)
	open        func(path string) (Device, error)
	selector    device.Selector
	broadcaster *Broadcaster
	sessionID   string

	deviceMu sync.RWMutex
	device   Device

	lastPushedSeq atomic.Uint64
	unsubscribe   func()

	// Shutdown coordination
	started  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	framesApplied   atomic.Uint64
	pushes          atomic.Uint64
	pushesDropped   atomic.Uint64
	commandsWritten atomic.Uint64
	commandsDropped atomic.Uint64
	deviceSessions  atomic.Uint64

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("network channel is required")
	}

	cfg := opts.Config

	parser := opts.Parser
	if parser == nil {
		var err error
		parser, err = telemetry.NewParser(ParserOptionsFromConfig(cfg.Protocol))
		if err != nil {
			return nil, fmt.Errorf("creating parser: %w", err)
		}
	}

	discover := opts.Discover
	if discover == nil {
		discover = device.Discover
	}

	open := opts.Open
	if open == nil {
		mode := device.Mode{
			BaudRate:       cfg.Serial.BaudRate,
			ReadBufferSize: cfg.Serial.ReadBufferSize,
			CommandPrefix:  cfg.Serial.CommandPrefix,
		}
		open = func(path string) (Device, error) {
			port, err := device.Open(path, mode)
			if err != nil {
				return nil, err
			}
			if opts.Logger != nil {
				port.SetLogger(opts.Logger)
			}
			return port, nil
		}
	}

	b := &Bridge{
		cfg:      cfg,
		store:    opts.Store,
		channel:  opts.Channel,
		parser:   parser,
		discover: discover,
		open:     open,
		selector: device.Selector{
			VendorID:  cfg.Serial.VendorID,
			ProductID: cfg.Serial.ProductID,
		},
		sessionID: uuid.NewString(),
		logger:    opts.Logger,
	}
	b.broadcaster = NewBroadcaster(cfg.BroadcastInterval(), func() { b.push("broadcast") })

	parser.SetOnFrame(b.handleFrame)
	parser.SetOnError(func(err error) {
		b.logDebug("frame error", "error", err)
	})

	return b, nil
}

// Start wires the network handlers, starts the broadcaster and brings up
// the device.
//
// The network side stays live whatever happens to the device. A device
// failure is returned as ErrDiscoveryFailed or ErrOpenFailed; with
// serial.retry enabled the device is retried in the background as well.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancelMu.Lock()
	b.cancel = cancel
	b.cancelMu.Unlock()

	b.channel.OnConnect(b.handleConnect)
	b.channel.OnReconnect(b.handleReconnect)
	b.channel.On(channel.EventCommand, b.handleCommand)
	b.channel.On(channel.EventSensorRequest, b.handleSensorRequest)
	b.unsubscribe = b.store.Subscribe(b.handleStateChange)

	b.broadcaster.Start(runCtx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"session_id", b.sessionID,
		"broadcast_interval", b.broadcaster.Interval().String())

	err := b.connectDevice(runCtx)
	if err != nil && b.cfg.Serial.Retry.Enabled {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.retryDevice(runCtx)
		}()
	}
	return err
}

// Stop gracefully shuts down the bridge. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancelMu.Lock()
		cancel := b.cancel
		b.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}

		b.broadcaster.Stop()

		if b.unsubscribe != nil {
			b.unsubscribe()
		}

		if dev := b.currentDevice(); dev != nil {
			//nolint:errcheck // Best-effort during shutdown
			dev.Close()
		}

		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// SessionID identifies this bridge run.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// connectDevice runs discovery, selection and open, then starts the read loop.
func (b *Bridge) connectDevice(ctx context.Context) error {
	path := b.cfg.Serial.Path
	if path == "" {
		ports, err := b.discover(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
		}
		desc, err := b.selector.Select(ports)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
		}
		path = desc.Path
		b.logDebug("device selected", "path", path, "vid", desc.VendorID, "pid", desc.ProductID, "product", desc.Product)
	}

	dev, err := b.open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	// The parser is only touched by one read loop at a time, and the
	// previous loop has returned before a new device is opened.
	b.parser.Reset()

	b.deviceMu.Lock()
	b.device = dev
	b.deviceMu.Unlock()
	b.deviceSessions.Add(1)
	b.store.ApplyDeviceUpdate(dev)

	b.logInfo("device opened", "path", path)

	b.wg.Add(1)
	go b.readLoop(ctx, dev)
	return nil
}

// readLoop feeds the parser until the device goes away.
func (b *Bridge) readLoop(ctx context.Context, dev Device) {
	defer b.wg.Done()

	err := dev.Pump(ctx, b.parser)

	b.deviceMu.Lock()
	if b.device == dev {
		b.device = nil
	}
	b.deviceMu.Unlock()
	b.store.ApplyDeviceUpdate(nil)

	if err == nil || ctx.Err() != nil {
		return
	}

	b.logError("device lost", err, "path", dev.Path())
	if b.cfg.Serial.Retry.Enabled {
		b.retryDevice(ctx)
	}
}

// retryDevice re-runs the device sequence with exponential backoff until it
// succeeds or ctx is cancelled.
func (b *Bridge) retryDevice(ctx context.Context) {
	delay := time.Duration(b.cfg.Serial.Retry.InitialDelay) * time.Second
	if delay <= 0 {
		delay = defaultRetryInitial
	}
	maxDelay := time.Duration(b.cfg.Serial.Retry.MaxDelay) * time.Second
	if maxDelay < delay {
		maxDelay = max(defaultRetryMax, delay)
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := b.connectDevice(ctx)
		if err == nil {
			b.logInfo("device recovered", "attempt", attempt)
			return
		}
		b.logWarn("device retry failed", "attempt", attempt, "error", err, "next_delay", delay.String())
		delay = min(delay*2, maxDelay)
	}
}

func (b *Bridge) currentDevice() Device {
	b.deviceMu.RLock()
	defer b.deviceMu.RUnlock()
	return b.device
}

// handleFrame applies a decoded frame. Runs on the read loop goroutine.
func (b *Bridge) handleFrame(snapshot telemetry.Snapshot) {
	b.framesApplied.Add(1)
	b.store.ApplySensorUpdate(snapshot)
}

// handleStateChange pushes the snapshot when a new sensor update landed.
// Device-only updates are not pushed.
func (b *Bridge) handleStateChange() {
	seq := b.store.GetState().SensorSeq
	if b.lastPushedSeq.Swap(seq) == seq {
		return
	}
	b.push("update")
}

func (b *Bridge) handleConnect() {
	b.logInfo("network connected")
	if err := b.channel.Send(b.cfg.Network.Greeting); err != nil {
		b.logDebug("greeting not sent", "error", err)
	}
}

func (b *Bridge) handleReconnect(attempt int) {
	b.logInfo("network reconnected", "attempt", attempt)
	if err := b.channel.Send(reconnectMessage(b.cfg.Network.ReconnectMessage, attempt)); err != nil {
		b.logDebug("reconnect message not sent", "error", err)
	}
}

// handleCommand writes an inbound command to the MCU verbatim.
// String payloads are unquoted; anything else is passed as raw JSON text.
func (b *Bridge) handleCommand(data json.RawMessage) {
	var cmd string
	if err := json.Unmarshal(data, &cmd); err != nil {
		cmd = string(data)
	}

	dev := b.currentDevice()
	if dev == nil {
		b.commandsDropped.Add(1)
		b.logDebug("command dropped, no device")
		return
	}

	if err := dev.Send(cmd); err != nil {
		b.commandsDropped.Add(1)
		if errors.Is(err, device.ErrWriteWhileClosed) {
			b.logDebug("command dropped, device closed", "path", dev.Path())
			return
		}
		b.logError("command write failed", err, "path", dev.Path())
		return
	}
	b.commandsWritten.Add(1)
}

func (b *Bridge) handleSensorRequest(json.RawMessage) {
	b.push("request")
}

// push emits the current snapshot. Failures while disconnected are counted
// and otherwise ignored.
func (b *Bridge) push(reason string) {
	snapshot := b.store.GetState().Sensor
	if err := b.channel.Emit(channel.EventSensorResponse, snapshot); err != nil {
		b.pushesDropped.Add(1)
		if !errors.Is(err, channel.ErrNotConnected) && !errors.Is(err, channel.ErrClosed) {
			b.logDebug("sensor push failed", "reason", reason, "error", err)
		}
		return
	}
	b.pushes.Add(1)
}

// Stats contains bridge counters for the status API.
type Stats struct {
	SessionID        string                `json:"session_id"`
	DeviceOpen       bool                  `json:"device_open"`
	DevicePath       string                `json:"device_path,omitempty"`
	DeviceSessions   uint64                `json:"device_sessions"`
	NetworkConnected bool                  `json:"network_connected"`
	FramesApplied    uint64                `json:"frames_applied"`
	Pushes           uint64                `json:"pushes"`
	PushesDropped    uint64                `json:"pushes_dropped"`
	Broadcasts       uint64                `json:"broadcasts"`
	CommandsWritten  uint64                `json:"commands_written"`
	CommandsDropped  uint64                `json:"commands_dropped"`
	Parser           telemetry.ParserStats `json:"parser"`
}

// Stats returns current bridge counters.
func (b *Bridge) Stats() Stats {
	s := Stats{
		SessionID:        b.sessionID,
		DeviceSessions:   b.deviceSessions.Load(),
		NetworkConnected: b.channel.IsConnected(),
		FramesApplied:    b.framesApplied.Load(),
		Pushes:           b.pushes.Load(),
		PushesDropped:    b.pushesDropped.Load(),
		Broadcasts:       b.broadcaster.Ticks(),
		CommandsWritten:  b.commandsWritten.Load(),
		CommandsDropped:  b.commandsDropped.Load(),
		Parser:           b.parser.Stats(),
	}
	if dev := b.currentDevice(); dev != nil {
		s.DeviceOpen = dev.IsOpen()
		s.DevicePath = dev.Path()
	}
	return s
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
