// Package database owns the SQLite store behind Beacon Notify Core.
//
// Beacons, proximity events, notifications, users and audit entries all
// live in a single SQLite file opened through mattn/go-sqlite3. The
// package wraps *sql.DB with lifecycle helpers and a small forward-only
// migration runner fed from an fs.FS (normally the embedded migrations
// package).
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// # Concurrency
//
// SQLite accepts one writer at a time, so the pool is pinned to a single
// open connection. WAL mode lets readers proceed while a write commits.
//
// # Migrations
//
// Files follow YYYYMMDD_HHMMSS_description.up.sql with an optional
// matching .down.sql. Each migration runs in its own transaction and is
// recorded in schema_migrations.
package database
