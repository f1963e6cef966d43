package device

import "errors"

// Domain errors for the device package.
var (
	// ErrEnumerationFailed is returned when the OS port list cannot be read.
	ErrEnumerationFailed = errors.New("device: port enumeration failed")

	// ErrNoPorts is returned when discovery finds no serial ports.
	ErrNoPorts = errors.New("device: no serial ports found")

	// ErrNoMatchingPort is returned when no discovered port satisfies the selector.
	ErrNoMatchingPort = errors.New("device: no port matches selector")

	// ErrOpenFailed is returned when a serial port cannot be opened.
	ErrOpenFailed = errors.New("device: open failed")

	// ErrWriteWhileClosed is returned by Send when the port is not open.
	ErrWriteWhileClosed = errors.New("device: write while closed")

	// ErrDeviceLost is returned by Pump when the device stops delivering data
	// without being closed locally.
	ErrDeviceLost = errors.New("device: connection lost")
)
