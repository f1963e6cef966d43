package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewSnapshot_ZeroValues(t *testing.T) {
	s := NewSnapshot(DefaultLayout())

	for _, ch := range DefaultLayout() {
		values, ok := s.Values[ch.Name]
		if !ok {
			t.Fatalf("channel %q missing", ch.Name)
		}
		if len(values) != ch.Size {
			t.Errorf("len(%s) = %d, want %d", ch.Name, len(values), ch.Size)
		}
		for i, v := range values {
			if v != 0 {
				t.Errorf("%s[%d] = %v, want 0", ch.Name, i, v)
			}
		}
		if s.Selection[ch.Name] {
			t.Errorf("Selection[%s] = true, want false", ch.Name)
		}
	}
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	orig := NewSnapshot(DefaultLayout())
	orig.Values[ChannelVoltage][0] = 3.3

	c := orig.Clone()
	c.Values[ChannelVoltage][0] = 5
	c.Selection[ChannelVoltage] = true

	if orig.Values[ChannelVoltage][0] != 3.3 {
		t.Errorf("original modified through clone: %v", orig.Values[ChannelVoltage])
	}
	if orig.Selection[ChannelVoltage] {
		t.Error("original selection modified through clone")
	}
}

func TestSnapshot_Equal(t *testing.T) {
	a := NewSnapshot(DefaultLayout())
	b := a.Clone()
	if !a.Equal(b) {
		t.Error("clone not equal to original")
	}

	b.Values[ChannelCurrent][5] = 0.1
	if a.Equal(b) {
		t.Error("snapshots with different values reported equal")
	}

	c := a.Clone()
	c.Selection[ChannelCurrent] = true
	if a.Equal(c) {
		t.Error("snapshots with different selection reported equal")
	}
}

func TestSnapshot_JSONShape(t *testing.T) {
	s := NewSnapshot(Layout{{Name: "voltage", Size: 2}})
	s.Values["voltage"][1] = 4.5
	s.Selection["voltage"] = true

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"selection":{"voltage":true},"values":{"voltage":[0,4.5]}}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{name: "default", layout: DefaultLayout(), wantErr: false},
		{name: "empty", layout: Layout{}, wantErr: true},
		{name: "unnamed", layout: Layout{{Name: "", Size: 1}}, wantErr: true},
		{name: "duplicate", layout: Layout{{Name: "a", Size: 1}, {Name: "a", Size: 2}}, wantErr: true},
		{name: "negative size", layout: Layout{{Name: "a", Size: -1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("Validate() error = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestLayout_CapacityAndHas(t *testing.T) {
	l := DefaultLayout()
	if got := l.Capacity(); got != 16 {
		t.Errorf("Capacity() = %d, want 16", got)
	}
	if !l.Has(ChannelTemperature) {
		t.Error("Has(temperature) = false, want true")
	}
	if l.Has("pressure") {
		t.Error("Has(pressure) = true, want false")
	}
}
