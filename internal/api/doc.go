// Package api implements the read-only HTTP status API of the bridge.
//
// This package provides:
//   - GET /api/v1/health: liveness plus device, network and journal status
//   - GET /api/v1/state: the current sensor snapshot and device
//   - GET /api/v1/state/{channel}: one channel of the snapshot
//   - GET /api/v1/history: journaled snapshots, most recent first
//   - GET /api/v1/metrics: runtime, bridge and journal counters
//   - GET /api/v1/ws: live "sensor" and "device" events over WebSocket
//
// The API never writes to the store; operator commands travel over the
// upstream network channel only.
//
// # Graceful Degradation
//
// The journal and bridge are optional dependencies. Without a journal the
// history endpoint answers 503; without a bridge the health and metrics
// responses omit its counters.
package api
