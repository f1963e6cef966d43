package mcu

import "errors"

// Domain errors for the sync bridge.
var (
	// ErrDiscoveryFailed is returned when no usable serial port is found.
	ErrDiscoveryFailed = errors.New("mcu: device discovery failed")

	// ErrOpenFailed is returned when the selected port cannot be opened.
	ErrOpenFailed = errors.New("mcu: device open failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("mcu: bridge already started")
)
