package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SensorMeasurement is the measurement name for sensor channel points.
const SensorMeasurement = "edusat_sensor"

// ChannelReading is one sensor channel of a decoded frame.
type ChannelReading struct {
	Channel  string
	Values   []float64
	Selected bool
}

// NewChannelPoint builds the point for one channel of a frame.
//
// Tags are bridge_id and channel; fields are the slot readings s0..sN, the
// selected flag and the store sequence number.
func NewChannelPoint(bridgeID string, r ChannelReading, seq uint64, ts time.Time) *write.Point {
	fields := make(map[string]interface{}, len(r.Values)+2)
	for i, v := range r.Values {
		fields["s"+strconv.Itoa(i)] = v
	}
	fields["selected"] = r.Selected
	fields["seq"] = int64(seq) //nolint:gosec // seq stays far below MaxInt64

	return write.NewPoint(
		SensorMeasurement,
		map[string]string{
			"bridge_id": bridgeID,
			"channel":   r.Channel,
		},
		fields,
		ts,
	)
}

// WriteSnapshot writes one point per channel reading, all stamped with ts.
//
// The write does not block. Points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteSnapshot("edusat-01", 42, time.Now(),
//	    influxdb.ChannelReading{Channel: "voltage", Values: []float64{3.3}, Selected: true})
func (c *Client) WriteSnapshot(bridgeID string, seq uint64, ts time.Time, readings ...ChannelReading) {
	if !c.IsConnected() {
		return
	}
	for _, r := range readings {
		c.writeAPI.WritePoint(NewChannelPoint(bridgeID, r, seq, ts))
	}
	c.queued.Add(uint64(len(readings)))
}
