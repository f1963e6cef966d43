package history

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// PointWriter accepts per-channel readings. *influxdb.Client satisfies it.
type PointWriter interface {
	WriteSnapshot(bridgeID string, seq uint64, ts time.Time, readings ...influxdb.ChannelReading)
}

// Recorder writes every new sensor snapshot to a PointWriter, one reading
// per channel in layout order.
type Recorder struct {
	writer   PointWriter
	bridgeID string
	layout   telemetry.Layout
	sampler  *sampler

	recorded atomic.Uint64
}

// NewRecorder creates a recorder for the given channel layout.
func NewRecorder(writer PointWriter, bridgeID string, layout telemetry.Layout, minInterval time.Duration) *Recorder {
	return &Recorder{
		writer:   writer,
		bridgeID: bridgeID,
		layout:   layout,
		sampler:  newSampler(minInterval, nil),
	}
}

// Attach subscribes the recorder to src and returns the unsubscribe function.
func (r *Recorder) Attach(src Source) (detach func()) {
	return src.Subscribe(func() {
		st := src.GetState()
		at, ok := r.sampler.admit(st)
		if !ok {
			return
		}
		r.writer.WriteSnapshot(r.bridgeID, st.SensorSeq, at, Readings(r.layout, st.Sensor)...)
		r.recorded.Add(1)
	})
}

// Recorded returns how many snapshots have been written.
func (r *Recorder) Recorded() uint64 {
	return r.recorded.Load()
}

// Readings splits a snapshot into per-channel readings in layout order.
// Channels missing from the snapshot are skipped.
func Readings(layout telemetry.Layout, s telemetry.Snapshot) []influxdb.ChannelReading {
	out := make([]influxdb.ChannelReading, 0, len(layout))
	for _, ch := range layout {
		values, ok := s.Values[ch.Name]
		if !ok {
			continue
		}
		out = append(out, influxdb.ChannelReading{
			Channel:  ch.Name,
			Values:   values,
			Selected: s.Selection[ch.Name],
		})
	}
	return out
}
