package telemetry

import (
	"fmt"
	"slices"
)

// Default channel names reported by the EDUSAT telemetry board.
const (
	ChannelVoltage     = "voltage"
	ChannelCurrent     = "current"
	ChannelTemperature = "temperature"
)

// ChannelSpec declares one sensor channel and its fixed number of readings.
type ChannelSpec struct {
	Name string
	Size int

	// Tag is the letter that opens the channel's group in indexed frames.
	// Zero means the lowercased first letter of Name.
	Tag byte
}

// GroupTag returns the letter that selects this channel in indexed frames.
func (c ChannelSpec) GroupTag() byte {
	if c.Tag != 0 {
		return c.Tag
	}
	if c.Name == "" {
		return 0
	}
	b := c.Name[0]
	if b >= 'A' && b <= 'Z' {
		b += 'a' - 'A'
	}
	return b
}

// Layout is the ordered set of channels a frame is decoded into.
type Layout []ChannelSpec

// DefaultLayout returns the board's channel layout: six voltage readings,
// six current readings and four temperature readings.
func DefaultLayout() Layout {
	return Layout{
		{Name: ChannelVoltage, Size: 6},
		{Name: ChannelCurrent, Size: 6},
		{Name: ChannelTemperature, Size: 4},
	}
}

// Validate checks that the layout has at least one channel, that names are
// unique and non-empty, and that every size is positive.
func (l Layout) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidLayout)
	}
	seen := make(map[string]bool, len(l))
	for i, ch := range l {
		if ch.Name == "" {
			return fmt.Errorf("%w: channel %d has no name", ErrInvalidLayout, i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("%w: duplicate channel %q", ErrInvalidLayout, ch.Name)
		}
		if ch.Size <= 0 {
			return fmt.Errorf("%w: channel %q has size %d", ErrInvalidLayout, ch.Name, ch.Size)
		}
		seen[ch.Name] = true
	}
	return nil
}

// Capacity returns the total number of slots across all channels.
func (l Layout) Capacity() int {
	n := 0
	for _, ch := range l {
		n += ch.Size
	}
	return n
}

// Has reports whether the layout declares a channel with the given name.
func (l Layout) Has(name string) bool {
	return slices.ContainsFunc(l, func(ch ChannelSpec) bool { return ch.Name == name })
}

// Snapshot is the sensor state decoded from one frame.
//
// Selection marks the channels the frame carried data for. Values holds the
// readings per channel; slice lengths match the layout and never change.
// A Snapshot handed to observers must be treated as read-only; use Clone to
// obtain a copy that can be modified.
type Snapshot struct {
	Selection map[string]bool      `json:"selection" cbor:"1,keyasint"`
	Values    map[string][]float64 `json:"values" cbor:"2,keyasint"`
}

// NewSnapshot returns a snapshot for the layout with every reading zero and
// every channel deselected.
func NewSnapshot(layout Layout) Snapshot {
	s := Snapshot{
		Selection: make(map[string]bool, len(layout)),
		Values:    make(map[string][]float64, len(layout)),
	}
	for _, ch := range layout {
		s.Selection[ch.Name] = false
		s.Values[ch.Name] = make([]float64, ch.Size)
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		Selection: make(map[string]bool, len(s.Selection)),
		Values:    make(map[string][]float64, len(s.Values)),
	}
	for k, v := range s.Selection {
		c.Selection[k] = v
	}
	for k, v := range s.Values {
		c.Values[k] = slices.Clone(v)
	}
	return c
}

// Equal reports whether two snapshots carry the same selection and readings.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.Selection) != len(o.Selection) || len(s.Values) != len(o.Values) {
		return false
	}
	for k, v := range s.Selection {
		if ov, ok := o.Selection[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range s.Values {
		ov, ok := o.Values[k]
		if !ok || !slices.Equal(v, ov) {
			return false
		}
	}
	return true
}
