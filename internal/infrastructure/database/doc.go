// Package database provides SQLite connectivity for the telemetry journal.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations read from an fs.FS (the migrations package embeds them)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or carry a
// DEFAULT so an older binary can still read the file.
package database
