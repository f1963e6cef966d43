package history

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/edusat-bridge/internal/state"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

type writeCall struct {
	bridgeID string
	seq      uint64
	readings []influxdb.ChannelReading
}

// MockPointWriter records WriteSnapshot calls.
type MockPointWriter struct {
	mu    sync.Mutex
	calls []writeCall
}

func (m *MockPointWriter) WriteSnapshot(bridgeID string, seq uint64, _ time.Time, readings ...influxdb.ChannelReading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, writeCall{bridgeID: bridgeID, seq: seq, readings: readings})
}

func (m *MockPointWriter) GetCalls() []writeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]writeCall(nil), m.calls...)
}

func TestRecorder_WritesOnePointPerChannel(t *testing.T) {
	layout := telemetry.DefaultLayout()
	store := state.NewStore(layout)
	writer := &MockPointWriter{}
	rec := NewRecorder(writer, "edusat-01", layout, 0)
	detach := rec.Attach(store)
	defer detach()

	store.ApplyDeviceUpdate(testDevice{path: "/dev/ttyACM0"})
	store.ApplySensorUpdate(snapshotWith(3.3))

	calls := writer.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.bridgeID != "edusat-01" || c.seq != 1 {
		t.Errorf("call = %+v", c)
	}
	if len(c.readings) != len(layout) {
		t.Fatalf("readings = %d, want %d", len(c.readings), len(layout))
	}
	for i, ch := range layout {
		if c.readings[i].Channel != ch.Name || len(c.readings[i].Values) != ch.Size {
			t.Errorf("readings[%d] = %+v, want channel %s size %d", i, c.readings[i], ch.Name, ch.Size)
		}
	}
	if !c.readings[0].Selected || c.readings[0].Values[0] != 3.3 {
		t.Errorf("voltage reading = %+v", c.readings[0])
	}
	if rec.Recorded() != 1 {
		t.Errorf("Recorded() = %d, want 1", rec.Recorded())
	}
}

func TestReadings_SkipsMissingChannels(t *testing.T) {
	layout := telemetry.Layout{{Name: "voltage", Size: 2}, {Name: "pressure", Size: 1}}
	s := telemetry.NewSnapshot(telemetry.Layout{{Name: "voltage", Size: 2}})

	got := Readings(layout, s)
	if len(got) != 1 || got[0].Channel != "voltage" {
		t.Errorf("Readings() = %+v", got)
	}
}
