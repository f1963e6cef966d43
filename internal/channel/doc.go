// Package channel provides the bidirectional event channel between the
// bridge and the ground station.
//
// A Channel carries named events with JSON payloads. Two transports are
// provided: a WebSocket client that reconnects with exponential backoff,
// and an MQTT adapter that maps events onto per-bridge topics.
//
// Both transports share the same lifecycle callbacks:
//
//	ch.OnConnect(func() { ch.Send("Hello from client!") })
//	ch.OnReconnect(func(attempt int) { ... })
//	ch.On(channel.EventCommand, func(data json.RawMessage) { ... })
//	if err := ch.Connect(ctx); err != nil { ... }
//
// OnConnect fires on the first connection and again after every
// reconnection. OnReconnect fires only after a reconnection.
package channel
