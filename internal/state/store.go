package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// SensorTransform is applied to every incoming snapshot before it is stored.
// It receives a private copy and may modify it in place.
type SensorTransform func(telemetry.Snapshot) telemetry.Snapshot

// Option configures a Store.
type Option func(*Store)

// WithTransform sets the transformation applied on every sensor update.
func WithTransform(fn SensorTransform) Option {
	return func(s *Store) {
		s.transform = fn
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns the bridge state.
//
// Thread Safety: all methods are safe for concurrent use. Subscribers must
// not apply actions from inside a notification.
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[State]

	subMu sync.Mutex
	subs  []*subscription

	transform SensorTransform
	now       func() time.Time
}

type subscription struct {
	fn     func()
	active atomic.Bool
}

// NewStore creates a store whose initial snapshot has every reading of the
// layout at zero, no channel selected and no device.
func NewStore(layout telemetry.Layout, opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	initial := State{Sensor: telemetry.NewSnapshot(layout)}
	s.current.Store(&initial)
	return s
}

// GetState returns the current state. The snapshot is a private copy.
func (s *Store) GetState() State {
	return s.current.Load().clone()
}

// ApplySensorUpdate replaces the sensor selection and values wholesale and
// notifies subscribers before returning.
func (s *Store) ApplySensorUpdate(snapshot telemetry.Snapshot) State {
	return s.Dispatch(UpdateSensorData{Snapshot: snapshot})
}

// ApplyDeviceUpdate replaces the device reference and notifies subscribers
// before returning. Pass nil to record that no device is open.
func (s *Store) ApplyDeviceUpdate(device DeviceView) State {
	return s.Dispatch(UpdateDevice{Device: device})
}

// Dispatch applies an action and returns the resulting state.
//
// Unrecognised actions leave the state unchanged and notify nobody.
func (s *Store) Dispatch(action Action) State {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()
	next, ok := s.reduce(*prev, action)
	if !ok {
		return prev.clone()
	}

	s.current.Store(&next)
	s.notify()
	return next.clone()
}

// reduce computes the state that follows prev under action.
func (s *Store) reduce(prev State, action Action) (State, bool) {
	switch a := action.(type) {
	case UpdateSensorData:
		sensor := a.Snapshot.Clone()
		if s.transform != nil {
			sensor = s.transform(sensor)
		}
		prev.Sensor = sensor
		prev.SensorSeq++
	case *UpdateSensorData:
		if a == nil {
			return prev, false
		}
		return s.reduce(prev, *a)
	case UpdateDevice:
		prev.Device = a.Device
	case *UpdateDevice:
		if a == nil {
			return prev, false
		}
		return s.reduce(prev, *a)
	default:
		return prev, false
	}
	prev.UpdatedAt = s.now()
	return prev, true
}

// Subscribe registers fn to be called after every applied action.
//
// The returned function removes the subscription. Once it returns, fn is not
// called again. Calling it more than once is harmless.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, existing := range s.subs {
				if existing == sub {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// SubscriberCount returns the number of registered subscribers.
func (s *Store) SubscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// notify calls subscribers in registration order. Called with writeMu held.
func (s *Store) notify() {
	s.subMu.Lock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn()
		}
	}
}
