package history

import (
	"sync"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/state"
)

// Source is the store surface the recorders need. *state.Store satisfies it.
type Source interface {
	GetState() state.State
	Subscribe(fn func()) (unsubscribe func())
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// sampler admits a state when it carries a sensor update not seen before
// and at least minInterval has passed since the last admitted one.
type sampler struct {
	minInterval time.Duration
	now         func() time.Time

	mu      sync.Mutex
	lastSeq uint64
	lastAt  time.Time
	skipped uint64
}

func newSampler(minInterval time.Duration, now func() time.Time) *sampler {
	if now == nil {
		now = time.Now
	}
	return &sampler{minInterval: minInterval, now: now}
}

// admit returns the sample time and whether st should be recorded.
func (s *sampler) admit(st state.State) (time.Time, bool) {
	if !st.HasData() {
		return time.Time{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st.SensorSeq == s.lastSeq {
		return time.Time{}, false
	}
	now := s.now()
	if !s.lastAt.IsZero() && now.Sub(s.lastAt) < s.minInterval {
		s.skipped++
		return time.Time{}, false
	}
	s.lastSeq = st.SensorSeq
	s.lastAt = now
	return now, true
}

func (s *sampler) skippedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

func devicePath(st state.State) string {
	if st.Device == nil {
		return ""
	}
	return st.Device.Path()
}
