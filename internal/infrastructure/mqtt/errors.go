package mqtt

import "errors"

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectPending is returned by Start when the broker has not
	// answered yet. The client keeps dialling in the background.
	ErrConnectPending = errors.New("mqtt: connection pending")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
