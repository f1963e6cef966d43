package state

import (
	"fmt"
	"math/rand/v2"

	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// JitterMode selects how Jitter changes the target channel.
type JitterMode string

const (
	// JitterReplace overwrites every reading with a value in [0, Amplitude).
	JitterReplace JitterMode = "replace"

	// JitterOffset adds a value in [-Amplitude/2, Amplitude/2) to every reading.
	JitterOffset JitterMode = "offset"
)

// Jitter randomizes one channel of every sensor update.
type Jitter struct {
	Channel   string
	Amplitude float64
	Mode      JitterMode

	// Rand returns values in [0, 1). Defaults to math/rand/v2.Float64.
	Rand func() float64
}

// Transform returns the SensorTransform for this policy.
func (j Jitter) Transform() (SensorTransform, error) {
	switch j.Mode {
	case JitterReplace, JitterOffset:
	default:
		return nil, fmt.Errorf("state: unknown jitter mode %q", j.Mode)
	}
	if j.Channel == "" {
		return nil, fmt.Errorf("state: jitter channel is required")
	}

	random := j.Rand
	if random == nil {
		random = rand.Float64
	}

	return func(s telemetry.Snapshot) telemetry.Snapshot {
		values, ok := s.Values[j.Channel]
		if !ok {
			return s
		}
		for i := range values {
			r := random() * j.Amplitude
			if j.Mode == JitterOffset {
				values[i] += r - j.Amplitude/2
			} else {
				values[i] = r
			}
		}
		return s
	}, nil
}
