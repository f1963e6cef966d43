package telemetry

import "errors"

// Domain errors for the telemetry package.
//
// None of these escape Parser.Write. They are delivered to the error
// callback, wrapped with the field or frame they concern.
var (
	// ErrMalformedField is reported when a field is not a finite decimal
	// number. The field reads as zero and the frame continues.
	ErrMalformedField = errors.New("telemetry: malformed field")

	// ErrFrameTooLarge is reported when a frame grows past the configured
	// byte limit without an end marker. The partial frame is dropped.
	ErrFrameTooLarge = errors.New("telemetry: frame too large")

	// ErrFieldOverflow is reported when a frame carries more fields than
	// the layout has slots. The surplus field is dropped.
	ErrFieldOverflow = errors.New("telemetry: field beyond channel capacity")

	// ErrInvalidLayout is returned when a channel layout cannot be used.
	ErrInvalidLayout = errors.New("telemetry: invalid channel layout")
)
