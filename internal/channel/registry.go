package channel

import (
	"encoding/json"
	"sync"
)

// registry holds event handlers and lifecycle callbacks for a transport.
type registry struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	onConnect   []func()
	onReconnect []func(int)

	logger   Logger
	loggerMu sync.RWMutex
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]Handler)}
}

func (r *registry) on(event string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers[event] = append(r.handlers[event], h)
	r.mu.Unlock()
}

func (r *registry) addOnConnect(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onConnect = append(r.onConnect, fn)
	r.mu.Unlock()
}

func (r *registry) addOnReconnect(fn func(int)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onReconnect = append(r.onReconnect, fn)
	r.mu.Unlock()
}

// dispatch runs every handler registered for event. Returns false if none.
func (r *registry) dispatch(event string, data json.RawMessage) bool {
	r.mu.RLock()
	hs := append([]Handler(nil), r.handlers[event]...)
	r.mu.RUnlock()

	for _, h := range hs {
		r.safely(event, func() { h(data) })
	}
	return len(hs) > 0
}

func (r *registry) fireConnect() {
	r.mu.RLock()
	fns := append([]func(){}, r.onConnect...)
	r.mu.RUnlock()

	for _, fn := range fns {
		r.safely("connect", fn)
	}
}

func (r *registry) fireReconnect(attempt int) {
	r.mu.RLock()
	fns := append([]func(int){}, r.onReconnect...)
	r.mu.RUnlock()

	for _, fn := range fns {
		r.safely("reconnect", func() { fn(attempt) })
	}
}

// safely runs fn, recovering and logging a panic.
func (r *registry) safely(event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			if l := r.getLogger(); l != nil {
				l.Error("channel handler panic recovered", "event", event, "panic", rec)
			}
		}
	}()
	fn()
}

func (r *registry) setLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *registry) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}
