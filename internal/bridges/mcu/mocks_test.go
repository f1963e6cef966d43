package mcu

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/channel"
	"github.com/nerrad567/edusat-bridge/internal/device"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// MockChannel implements Channel for testing.
type MockChannel struct {
	mu          sync.Mutex
	connected   bool
	handlers    map[string][]channel.Handler
	onConnect   []func()
	onReconnect []func(int)
	emitted     []emittedEvent
	emitErr     error
}

type emittedEvent struct {
	event string
	data  any
}

func NewMockChannel() *MockChannel {
	return &MockChannel{
		connected: true,
		handlers:  make(map[string][]channel.Handler),
	}
}

func (m *MockChannel) On(event string, h channel.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

func (m *MockChannel) OnConnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = append(m.onConnect, fn)
}

func (m *MockChannel) OnReconnect(fn func(int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = append(m.onReconnect, fn)
}

func (m *MockChannel) Emit(event string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	if !m.connected {
		return channel.ErrNotConnected
	}
	m.emitted = append(m.emitted, emittedEvent{event: event, data: data})
	return nil
}

func (m *MockChannel) Send(text string) error {
	return m.Emit(channel.EventMessage, text)
}

func (m *MockChannel) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetConnected changes the simulated connection state.
func (m *MockChannel) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// SimulateConnect fires the connect callbacks.
func (m *MockChannel) SimulateConnect() {
	m.mu.Lock()
	fns := append([]func(){}, m.onConnect...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SimulateReconnect fires the reconnect callbacks.
func (m *MockChannel) SimulateReconnect(attempt int) {
	m.mu.Lock()
	fns := append([]func(int){}, m.onReconnect...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(attempt)
	}
}

// SimulateEvent delivers an inbound event with a JSON payload.
func (m *MockChannel) SimulateEvent(event string, payload string) {
	m.mu.Lock()
	hs := append([]channel.Handler(nil), m.handlers[event]...)
	m.mu.Unlock()
	for _, h := range hs {
		h(json.RawMessage(payload))
	}
}

// GetSnapshots returns every pushed sensorResponse snapshot.
func (m *MockChannel) GetSnapshots() []telemetry.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []telemetry.Snapshot
	for _, e := range m.emitted {
		if e.event == channel.EventSensorResponse {
			out = append(out, e.data.(telemetry.Snapshot))
		}
	}
	return out
}

// GetMessages returns every text sent with Send.
func (m *MockChannel) GetMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.emitted {
		if e.event == channel.EventMessage {
			out = append(out, e.data.(string))
		}
	}
	return out
}

// MockDevice implements Device for testing. Bytes written to Feed are
// delivered by Pump.
type MockDevice struct {
	path      string
	open      atomic.Bool
	data      chan []byte
	fail      chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	commands []string
}

func NewMockDevice(path string) *MockDevice {
	d := &MockDevice{
		path:   path,
		data:   make(chan []byte, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	d.open.Store(true)
	return d
}

func (d *MockDevice) Path() string { return d.path }
func (d *MockDevice) IsOpen() bool { return d.open.Load() }

func (d *MockDevice) Send(command string) error {
	if !d.IsOpen() {
		return device.ErrWriteWhileClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, command)
	return nil
}

func (d *MockDevice) Pump(ctx context.Context, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return nil
		case <-d.closed:
			return nil
		case err := <-d.fail:
			d.Close()
			return err
		case chunk := <-d.data:
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
	}
}

func (d *MockDevice) Close() error {
	d.closeOnce.Do(func() {
		d.open.Store(false)
		close(d.closed)
	})
	return nil
}

// Feed queues a chunk for Pump.
func (d *MockDevice) Feed(chunk string) {
	d.data <- []byte(chunk)
}

// SimulateLoss makes Pump fail with err.
func (d *MockDevice) SimulateLoss(err error) {
	d.fail <- err
}

// GetCommands returns the commands written to the device.
func (d *MockDevice) GetCommands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
