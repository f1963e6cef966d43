// Package mcu implements the sync bridge between the EDUSAT microcontroller
// and the ground station.
//
// # Architecture
//
//	┌──────────┐  serial   ┌──────────────────────────────┐  channel  ┌────────────────┐
//	│   MCU    │──────────►│ Parser ─► Store ─► push      │──────────►│ Ground station │
//	│          │◄──────────│ Send ◄── command handler     │◄──────────│                │
//	└──────────┘           └──────────────────────────────┘           └────────────────┘
//
// Device bytes are decoded into snapshots by telemetry.Parser and applied to
// the state.Store. Every new snapshot is pushed to the network as a
// sensorResponse event, and a Broadcaster pushes the current snapshot at a
// fixed rate. Inbound command events are written to the MCU verbatim.
//
// The network side is wired before the device is opened, so the ground
// station sees default snapshots even when no MCU is attached.
//
// Example:
//
//	b, err := mcu.NewBridge(mcu.BridgeOptions{
//	    Config:  cfg,
//	    Store:   store,
//	    Channel: ch,
//	    Logger:  log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    log.Error("device unavailable", "error", err)
//	}
//	defer b.Stop()
package mcu
