// Package database provides the SQLite connection behind the controller's
// journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying numbered, embedded schema migrations
//   - Health checks for the status API
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named NNNN_description.up.sql with an optional
// NNNN_description.down.sql. Migrations are additive: new columns must be
// nullable or carry a default.
package database
