package channel

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(EventSensorResponse, map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.Event != EventSensorResponse {
		t.Errorf("Event = %q, want %q", msg.Event, EventSensorResponse)
	}
	if msg.ID == "" {
		t.Error("ID is empty")
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
	if string(msg.Data) != `{"a":1}` {
		t.Errorf("Data = %s, want {\"a\":1}", msg.Data)
	}

	other, err := NewMessage(EventSensorResponse, nil)
	if err != nil {
		t.Fatalf("NewMessage(nil) error = %v", err)
	}
	if other.ID == msg.ID {
		t.Error("message IDs should be unique")
	}
	if other.Data != nil {
		t.Errorf("Data = %s, want nil", other.Data)
	}
}

func TestNewMessage_Errors(t *testing.T) {
	if _, err := NewMessage("", nil); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("empty event error = %v, want ErrInvalidMessage", err)
	}
	if _, err := NewMessage(EventMessage, make(chan int)); err == nil {
		t.Error("unencodable payload should fail")
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		event   string
		data    string
		wantErr bool
	}{
		{"command", `{"event":"command","data":"led on"}`, "command", `"led on"`, false},
		{"no data", `{"event":"sensorRequest"}`, "sensorRequest", "", false},
		{"missing event", `{"data":1}`, "", "", true},
		{"not json", `hello`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("error = %v, want ErrInvalidMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			if msg.Event != tt.event || string(msg.Data) != tt.data {
				t.Errorf("got (%q, %s), want (%q, %s)", msg.Event, msg.Data, tt.event, tt.data)
			}
		})
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestRegistry_DispatchOrderAndRecovery(t *testing.T) {
	reg := newRegistry()
	logger := &recordingLogger{}
	reg.setLogger(logger)

	var order []string
	reg.on(EventCommand, func(json.RawMessage) { order = append(order, "first") })
	reg.on(EventCommand, func(json.RawMessage) { panic("boom") })
	reg.on(EventCommand, func(data json.RawMessage) { order = append(order, "third:"+string(data)) })
	reg.on(EventCommand, nil)

	if !reg.dispatch(EventCommand, json.RawMessage(`"x"`)) {
		t.Fatal("dispatch() = false, want true")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != `third:"x"` {
		t.Errorf("order = %v", order)
	}
	if logger.errorCount() != 1 {
		t.Errorf("logged errors = %d, want 1", logger.errorCount())
	}

	if reg.dispatch("unknown", nil) {
		t.Error("dispatch(unknown) = true, want false")
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	reg := newRegistry()

	connects := 0
	var attempts []int
	reg.addOnConnect(func() { connects++ })
	reg.addOnReconnect(func(n int) { attempts = append(attempts, n) })
	reg.addOnConnect(nil)
	reg.addOnReconnect(nil)

	reg.fireConnect()
	reg.fireReconnect(3)

	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if len(attempts) != 1 || attempts[0] != 3 {
		t.Errorf("attempts = %v, want [3]", attempts)
	}
}
