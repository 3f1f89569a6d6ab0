// Package device holds what Bluerial knows about BLE devices beyond a
// single advertisement.
//
// # Known-device registry
//
// Registry is a cached catalogue of known devices backed by the
// ble_known_devices table. Each entry maps a radio address to a stable
// identity, a display name, and connection flags. The registry is seeded
// from the known_devices list in config.yaml with create-if-not-exists
// semantics, so edits made later through the repository survive a restart.
//
// Registry implements watcher.Enricher. Resolve answers from the cache only
// and never touches the radio:
//
//	reg := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := reg.RefreshCache(ctx); err != nil { ... }
//	if _, err := reg.Seed(ctx, cfg.BLE.KnownDevices); err != nil { ... }
//	w, _ := watcher.New(src, watcher.Options{Enricher: reg})
//
// An unknown address resolves to an error matching both ErrDeviceNotFound
// and watcher.ErrNotFound, which the watcher counts as a miss.
//
// # Sighting history
//
// SQLiteSightingRepository is an append-only journal of presence events in
// the ble_sightings table, each row carrying a JSON snapshot of the record.
// Recorder subscribes to a watcher and writes from a bounded queue on its
// own goroutine; a full queue drops the event with a warning so the
// dispatcher never blocks on the database.
//
//	rec := device.NewRecorder(device.NewSQLiteSightingRepository(db.DB), 256)
//	rec.Start()
//	unsubscribe := w.Subscribe(rec.Handle, device.RecordedEvents...)
//
// History returns the newest entries first (default 50, max 200).
package device
