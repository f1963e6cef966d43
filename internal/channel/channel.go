package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names exchanged with the ground station.
const (
	// EventCommand carries an operator command string for the MCU.
	EventCommand = "command"

	// EventSensorRequest asks for the current sensor snapshot.
	EventSensorRequest = "sensorRequest"

	// EventSensorResponse carries a sensor snapshot.
	EventSensorResponse = "sensorResponse"

	// EventMessage carries free text, such as the greeting.
	EventMessage = "message"
)

// Errors returned by channel transports.
var (
	// ErrNotConnected is returned when emitting while the transport is down.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrClosed is returned when using a channel after Close.
	ErrClosed = errors.New("channel: closed")

	// ErrInvalidMessage is returned for envelopes that cannot be decoded.
	ErrInvalidMessage = errors.New("channel: invalid message")
)

// Handler receives the JSON payload of an inbound event.
type Handler func(data json.RawMessage)

// Channel is a bidirectional named-event connection.
type Channel interface {
	// Connect starts the transport. Reconnection happens in the background
	// until ctx is cancelled or Close is called.
	Connect(ctx context.Context) error

	// On registers a handler for an inbound event. Handlers for the same
	// event run in registration order.
	On(event string, h Handler)

	// OnConnect registers a callback fired on every (re)connection.
	OnConnect(fn func())

	// OnReconnect registers a callback fired after a reconnection with the
	// number of attempts it took.
	OnReconnect(fn func(attempt int))

	// Emit sends an event with a payload that is marshalled to JSON.
	Emit(event string, data any) error

	// Send emits a free-text EventMessage.
	Send(text string) error

	// IsConnected reports whether the transport is currently up.
	IsConnected() bool

	// Close stops the transport. Safe to call multiple times.
	Close() error
}

// Message is the envelope every event travels in.
type Message struct {
	Event     string          `json:"event"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope for event with a fresh ID.
func NewMessage(event string, data any) (Message, error) {
	if event == "" {
		return Message{}, fmt.Errorf("%w: empty event name", ErrInvalidMessage)
	}

	msg := Message{
		Event:     event,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("channel: encoding %s payload: %w", event, err)
		}
		msg.Data = raw
	}

	return msg, nil
}

// DecodeMessage parses an envelope.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Event == "" {
		return Message{}, fmt.Errorf("%w: missing event", ErrInvalidMessage)
	}
	return msg, nil
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds channel counters.
type Stats struct {
	Connected   bool      `json:"connected"`
	MessagesTx  uint64    `json:"messages_tx"`
	MessagesRx  uint64    `json:"messages_rx"`
	Reconnects  uint64    `json:"reconnects"`
	LastConnect time.Time `json:"last_connect,omitzero"`
}
