package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client the channel uses.
type MQTTClient interface {
	Start() error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnReconnecting(callback func())
	Topics() mqtt.Topics
	Close() error
}

// MQTTChannel is a Channel over per-bridge MQTT topics.
//
// Inbound events arrive on {prefix}/{bridge_id}/in/{event}. The payload is
// the event data; a payload that is not valid JSON is delivered as a JSON
// string so plain-text commands can be published by hand. Outbound events
// are published as JSON Messages on {prefix}/{bridge_id}/out/{event}.
type MQTTChannel struct {
	client MQTTClient
	topics mqtt.Topics
	qos    byte
	reg    *registry

	started atomic.Bool
	closed  atomic.Bool

	connects    atomic.Uint64
	attempts    atomic.Int64
	messagesTx  atomic.Uint64
	messagesRx  atomic.Uint64
	reconnects  atomic.Uint64
	lastConnect atomic.Int64
}

// NewMQTTChannel wraps an unstarted client. The channel owns the client
// and closes it on Close.
func NewMQTTChannel(client MQTTClient, qos byte) *MQTTChannel {
	return &MQTTChannel{
		client: client,
		topics: client.Topics(),
		qos:    qos,
		reg:    newRegistry(),
	}
}

// Connect starts the client. A broker that does not answer in time is not
// an error: the client keeps dialling in the background and the connect
// callbacks fire when it succeeds. The channel is closed when ctx is
// cancelled.
func (c *MQTTChannel) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	c.client.SetOnReconnecting(func() { c.attempts.Add(1) })
	c.client.SetOnConnect(c.handleConnect)

	switch err := c.client.Start(); {
	case err == nil:
	case errors.Is(err, mqtt.ErrConnectPending):
		if l := c.reg.getLogger(); l != nil {
			l.Warn("mqtt broker not reachable, retrying in background", "error", err)
		}
	default:
		//nolint:errcheck // already failing
		c.Close()
		return fmt.Errorf("channel: mqtt connect: %w", err)
	}

	context.AfterFunc(ctx, func() {
		//nolint:errcheck // Shutdown is best-effort
		c.Close()
	})
	return nil
}

// On registers a handler for an inbound event.
func (c *MQTTChannel) On(event string, h Handler) { c.reg.on(event, h) }

// OnConnect registers a callback fired on every (re)connection.
func (c *MQTTChannel) OnConnect(fn func()) { c.reg.addOnConnect(fn) }

// OnReconnect registers a callback fired after a reconnection.
func (c *MQTTChannel) OnReconnect(fn func(attempt int)) { c.reg.addOnReconnect(fn) }

// SetLogger sets the logger for this channel.
func (c *MQTTChannel) SetLogger(logger Logger) { c.reg.setLogger(logger) }

// Emit publishes event with data as a JSON Message.
func (c *MQTTChannel) Emit(event string, data any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	msg, err := NewMessage(event, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("channel: encoding %s: %w", event, err)
	}

	if err := c.client.Publish(c.topics.Outbound(event), raw, c.qos, false); err != nil {
		return fmt.Errorf("channel: publishing %s: %w", event, err)
	}
	c.messagesTx.Add(1)
	return nil
}

// Send emits text as an EventMessage.
func (c *MQTTChannel) Send(text string) error {
	return c.Emit(EventMessage, text)
}

// IsConnected reports whether the broker connection is up.
func (c *MQTTChannel) IsConnected() bool {
	return !c.closed.Load() && c.client.IsConnected()
}

// Stats returns channel counters.
func (c *MQTTChannel) Stats() Stats {
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

// Close disconnects the client. Safe to call multiple times.
func (c *MQTTChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.client.Close()
}

// handleConnect runs on every broker (re)connection.
func (c *MQTTChannel) handleConnect() {
	if c.closed.Load() {
		return
	}

	if err := c.client.Subscribe(c.topics.AllInbound(), c.qos, c.handleMessage); err != nil {
		if l := c.reg.getLogger(); l != nil {
			l.Error("mqtt channel subscribe failed", "topic", c.topics.AllInbound(), "error", err)
		}
	}

	n := c.connects.Add(1)
	attempts := c.attempts.Swap(0)
	c.lastConnect.Store(time.Now().UnixNano())

	c.reg.fireConnect()
	if n > 1 {
		c.reconnects.Add(1)
		c.reg.fireReconnect(int(max(attempts, 1)))
	}
}

func (c *MQTTChannel) handleMessage(topic string, payload []byte) error {
	event, ok := c.topics.InboundEvent(topic)
	if !ok {
		return fmt.Errorf("channel: unexpected topic %q", topic)
	}
	c.messagesRx.Add(1)

	data := json.RawMessage(payload)
	if len(payload) == 0 || !json.Valid(payload) {
		raw, err := json.Marshal(string(payload))
		if err != nil {
			return fmt.Errorf("channel: wrapping %s payload: %w", event, err)
		}
		data = raw
	}

	if !c.reg.dispatch(event, data) {
		if l := c.reg.getLogger(); l != nil {
			l.Debug("mqtt event without handler", "event", event)
		}
	}
	return nil
}
