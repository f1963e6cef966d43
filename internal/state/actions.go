package state

import "github.com/nerrad567/edusat-bridge/internal/telemetry"

// Action type identifiers.
const (
	ActionUpdateSensorData = "UPDATE_SENSOR_DATA"
	ActionUpdateDevice     = "UPDATE_DEVICE"
)

// Action is a state change request. The store ignores action types it does
// not recognise.
type Action interface {
	Type() string
}

// UpdateSensorData replaces the sensor snapshot.
type UpdateSensorData struct {
	Snapshot telemetry.Snapshot
}

// Type implements Action.
func (UpdateSensorData) Type() string { return ActionUpdateSensorData }

// UpdateDevice replaces the device reference. A nil Device clears it.
type UpdateDevice struct {
	Device DeviceView
}

// Type implements Action.
func (UpdateDevice) Type() string { return ActionUpdateDevice }
