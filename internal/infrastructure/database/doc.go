// Package database provides SQLite connectivity for graynotify.
//
// This package manages:
//   - the connection, with WAL mode and a busy timeout
//   - additive schema migrations embedded from the migrations package
//   - health checks for the API
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or have defaults,
// and every .up.sql file should have a matching .down.sql.
package database
