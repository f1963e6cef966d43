package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/mqtt"
)

// mockMQTTClient records publishes and lets tests drive callbacks.
type mockMQTTClient struct {
	mu             sync.Mutex
	topics         mqtt.Topics
	connected      bool
	startErr       error
	publishErr     error
	published      map[string][][]byte
	handlers       map[string]mqtt.MessageHandler
	onConnect      func()
	onReconnecting func()
	closed         int
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{
		topics:    mqtt.NewTopics("edusat", "sat-01"),
		published: make(map[string][][]byte),
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *mockMQTTClient) Start() error {
	m.mu.Lock()
	if m.startErr != nil {
		m.mu.Unlock()
		return m.startErr
	}
	m.connected = true
	m.mu.Unlock()
	m.connect()
	return nil
}

func (m *mockMQTTClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published[topic] = append(m.published[topic], payload)
	return nil
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTTClient) SetOnConnect(fn func()) {
	m.mu.Lock()
	m.onConnect = fn
	m.mu.Unlock()
}

func (m *mockMQTTClient) SetOnReconnecting(fn func()) {
	m.mu.Lock()
	m.onReconnecting = fn
	m.mu.Unlock()
}

func (m *mockMQTTClient) Topics() mqtt.Topics { return m.topics }

func (m *mockMQTTClient) Close() error {
	m.mu.Lock()
	m.closed++
	m.connected = false
	m.mu.Unlock()
	return nil
}

// connect simulates the broker library's on-connect callback.
func (m *mockMQTTClient) connect() {
	m.mu.Lock()
	fn := m.onConnect
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// reconnect simulates a lost connection recovered after n attempts.
func (m *mockMQTTClient) reconnect(n int) {
	m.mu.Lock()
	attempt := m.onReconnecting
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		attempt()
	}
	m.connect()
}

// deliver simulates an inbound message.
func (m *mockMQTTClient) deliver(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[m.topics.AllInbound()]
	m.mu.Unlock()
	if h == nil {
		t.Fatal("no inbound subscription")
	}
	return h(topic, payload)
}

func (m *mockMQTTClient) publishedOn(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[topic]
}

func TestMQTTChannel_ConnectSubscribesAndGreets(t *testing.T) {
	client := newMockMQTTClient()
	ch := NewMQTTChannel(client, 1)

	ch.OnConnect(func() {
		if err := ch.Send("Hello from client!"); err != nil {
			t.Errorf("Send() error = %v", err)
		}
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	out := client.publishedOn(client.topics.Outbound(EventMessage))
	if len(out) != 1 {
		t.Fatalf("published %d greetings, want 1", len(out))
	}
	msg, err := DecodeMessage(out[0])
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if msg.Event != EventMessage || string(msg.Data) != `"Hello from client!"` {
		t.Errorf("message = %+v", msg)
	}
	if !ch.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestMQTTChannel_InboundEvents(t *testing.T) {
	client := newMockMQTTClient()
	ch := NewMQTTChannel(client, 1)

	got := make([]string, 0, 3)
	ch.On(EventCommand, func(data json.RawMessage) {
		var cmd string
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Errorf("command payload %s: %v", data, err)
		}
		got = append(got, cmd)
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// JSON string and raw text both arrive as a JSON string.
	if err := client.deliver(t, client.topics.Inbound(EventCommand), []byte(`"led on"`)); err != nil {
		t.Errorf("deliver() error = %v", err)
	}
	if err := client.deliver(t, client.topics.Inbound(EventCommand), []byte("led off")); err != nil {
		t.Errorf("deliver() error = %v", err)
	}
	if err := client.deliver(t, "edusat/other/in/command", []byte("x")); err == nil {
		t.Error("deliver() on foreign topic expected error")
	}

	if len(got) != 2 || got[0] != "led on" || got[1] != "led off" {
		t.Errorf("commands = %v", got)
	}
	if ch.Stats().MessagesRx != 2 {
		t.Errorf("MessagesRx = %d, want 2", ch.Stats().MessagesRx)
	}
}

func TestMQTTChannel_Reconnect(t *testing.T) {
	client := newMockMQTTClient()
	ch := NewMQTTChannel(client, 1)

	connects := 0
	var attempts []int
	ch.OnConnect(func() { connects++ })
	ch.OnReconnect(func(n int) { attempts = append(attempts, n) })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.reconnect(3)
	client.reconnect(0)

	if connects != 3 {
		t.Errorf("connects = %d, want 3", connects)
	}
	if len(attempts) != 2 || attempts[0] != 3 || attempts[1] != 1 {
		t.Errorf("attempts = %v, want [3 1]", attempts)
	}
	if ch.Stats().Reconnects != 2 {
		t.Errorf("Reconnects = %d, want 2", ch.Stats().Reconnects)
	}
}

func TestMQTTChannel_Errors(t *testing.T) {
	client := newMockMQTTClient()
	ch := NewMQTTChannel(client, 1)

	if err := ch.Emit(EventSensorResponse, 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit() before connect error = %v, want ErrNotConnected", err)
	}

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.publishErr = mqtt.ErrPublishFailed
	if err := ch.Emit(EventSensorResponse, 1); !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Errorf("Emit() error = %v, want ErrPublishFailed", err)
	}

	ch.Close()
	ch.Close()
	if client.closed != 1 {
		t.Errorf("client closed %d times, want 1", client.closed)
	}
	if err := ch.Send("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestMQTTChannel_StartFailure(t *testing.T) {
	client := newMockMQTTClient()
	client.startErr = mqtt.ErrConnectionFailed
	ch := NewMQTTChannel(client, 1)

	if err := ch.Connect(context.Background()); !errors.Is(err, mqtt.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client.closed != 1 {
		t.Errorf("client closed %d times, want 1", client.closed)
	}
}

func TestMQTTChannel_BrokerDownAtStartup(t *testing.T) {
	client := newMockMQTTClient()
	client.startErr = mqtt.ErrConnectPending
	ch := NewMQTTChannel(client, 1)

	connects := 0
	ch.OnConnect(func() {
		connects++
		if err := ch.Send("Hello from client!"); err != nil {
			t.Errorf("Send() error = %v", err)
		}
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v, want nil while the broker is down", err)
	}
	if ch.IsConnected() {
		t.Error("IsConnected() = true before the broker answered")
	}
	if err := ch.Emit(EventSensorResponse, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit() error = %v, want ErrNotConnected", err)
	}

	// The broker comes up and the library completes the first connection.
	client.mu.Lock()
	client.connected = true
	client.mu.Unlock()
	client.connect()

	if connects != 1 {
		t.Errorf("OnConnect fired %d times, want 1", connects)
	}
	if len(client.publishedOn(client.topics.Outbound(EventMessage))) != 1 {
		t.Error("greeting not published after the late connection")
	}
	if err := client.deliver(t, client.topics.Inbound(EventCommand), []byte("x")); err != nil {
		t.Errorf("inbound delivery error = %v", err)
	}
	if client.closed != 0 {
		t.Errorf("client closed %d times, want 0", client.closed)
	}
}

func TestMQTTChannel_ContextCancelCloses(t *testing.T) {
	client := newMockMQTTClient()
	ch := NewMQTTChannel(client, 1)

	ctx, cancel := context.WithCancel(context.Background())
	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	cancel()

	// context.AfterFunc runs in its own goroutine.
	for i := 0; i < 200 && ch.IsConnected(); i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if ch.IsConnected() {
		t.Error("IsConnected() = true after context cancel")
	}
}
