package mcu

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBroadcaster_Disabled(t *testing.T) {
	var calls atomic.Int32
	b := NewBroadcaster(0, func() { calls.Add(1) })

	if b.Enabled() {
		t.Error("Enabled() = true for zero interval")
	}
	b.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	b.Stop()

	if calls.Load() != 0 {
		t.Errorf("push called %d times, want 0", calls.Load())
	}
}

func TestBroadcaster_PushesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	b := NewBroadcaster(5*time.Millisecond, func() { calls.Add(1) })

	b.Start(context.Background())
	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 }, "three pushes")
	b.Stop()
	b.Stop()

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Error("push called after Stop")
	}
	if b.Ticks() != uint64(after) {
		t.Errorf("Ticks() = %d, want %d", b.Ticks(), after)
	}
}

func TestBroadcaster_ContextCancel(t *testing.T) {
	var calls atomic.Int32
	b := NewBroadcaster(5*time.Millisecond, func() { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 }, "first push")
	cancel()

	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
}
