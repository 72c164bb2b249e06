// Package database provides SQLite connectivity for the sqlite storage backend.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Schema migrations from an fs.FS of "<version>_<name>.up.sql" files
//   - Connection lifecycle and health checks
//
// Database file permissions are set to 0600 (owner read/write only).
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Storage.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
