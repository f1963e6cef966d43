package state

import (
	"time"

	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// DeviceView is the read-only view of the serial device the store keeps.
type DeviceView interface {
	Path() string
	IsOpen() bool
}

// State is the composite bridge state.
type State struct {
	// Sensor is the latest decoded snapshot, or the all-zero default.
	Sensor telemetry.Snapshot

	// Device is the serial device in use, or nil when none is open.
	Device DeviceView

	// SensorSeq counts applied sensor updates. Zero means no data yet.
	SensorSeq uint64

	// UpdatedAt is when the last action was applied.
	UpdatedAt time.Time
}

// HasDevice reports whether a device reference is held.
func (s State) HasDevice() bool {
	return s.Device != nil
}

// HasData reports whether any sensor update has been applied.
func (s State) HasData() bool {
	return s.SensorSeq > 0
}

// clone returns a State whose snapshot shares nothing with s.
func (s State) clone() State {
	s.Sensor = s.Sensor.Clone()
	return s
}
