// Package state holds the bridge's single authoritative state: the latest
// sensor snapshot and the serial device currently in use.
//
// The Store is created once at startup and passed to every component that
// reads or changes state. It is changed only through actions:
//
//	store := state.NewStore(telemetry.DefaultLayout())
//	unsubscribe := store.Subscribe(func() { push(store.GetState()) })
//	defer unsubscribe()
//	store.ApplySensorUpdate(frame)
//
// Every applied action produces a new State value and notifies subscribers
// synchronously, in registration order, before the apply call returns.
// Applies are serialized by a mutex, so exactly one writer runs at a time.
// GetState reads an atomic pointer and never blocks.
package state
