// Package influxdb records sensor telemetry in InfluxDB v2.
//
// Each sensor channel of a frame becomes one point in the edusat_sensor
// measurement, tagged with bridge_id and channel. The slot readings are the
// fields s0..sN, next to selected and seq:
//
//	edusat_sensor,bridge_id=edusat-01,channel=voltage s0=3.3,s1=3.29,selected=true,seq=42i 1700000000000000000
//
// Writes are queued and batched by the client library, so WriteSnapshot can
// be called from a state store notification. Batch failures arrive on the
// SetOnError callback.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package influxdb
