// Package history records the bridge's telemetry over time.
//
// Two recorders subscribe to the state store and react only when a new
// sensor snapshot has been applied:
//
//   - Journal samples snapshots into the SQLite telemetry_frames table,
//     CBOR-encoded, through a bounded queue drained by one writer goroutine.
//     Rows beyond the retention limit are pruned oldest first.
//   - Recorder writes one InfluxDB point per sensor channel.
//
// Neither recorder blocks the store: the journal drops samples when its
// queue is full and the InfluxDB writer batches asynchronously.
package history
