package mcu

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Broadcaster calls a push function at a fixed rate.
//
// It is independent of the store's notifications: it pushes whatever the
// current snapshot is, changed or not.
type Broadcaster struct {
	interval time.Duration
	push     func()

	// Shutdown coordination (stopOnce prevents double-close panics)
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	ticks atomic.Uint64
}

// NewBroadcaster creates a broadcaster. An interval of zero or less
// disables it: Start and Stop become no-ops.
func NewBroadcaster(interval time.Duration, push func()) *Broadcaster {
	return &Broadcaster{
		interval: interval,
		push:     push,
		done:     make(chan struct{}),
	}
}

// Enabled reports whether the broadcaster has a positive interval.
func (b *Broadcaster) Enabled() bool {
	return b.interval > 0 && b.push != nil
}

// Interval returns the push period.
func (b *Broadcaster) Interval() time.Duration {
	return b.interval
}

// Start begins periodic pushes until ctx is cancelled or Stop is called.
func (b *Broadcaster) Start(ctx context.Context) {
	if !b.Enabled() {
		return
	}
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.loop(ctx)
	})
}

// Stop halts pushes and waits for an in-flight push to finish.
// Safe to call multiple times.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}

// Ticks returns how many pushes the broadcaster has made.
func (b *Broadcaster) Ticks() uint64 {
	return b.ticks.Load()
}

func (b *Broadcaster) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.ticks.Add(1)
			b.push()
		}
	}
}
