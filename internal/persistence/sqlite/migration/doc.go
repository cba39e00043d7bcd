// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migrations are read from an fs.FS (usually an embedded directory) and must be
// named {version}_{description}.sql, e.g. "001_initial_schema.sql". Each file
// runs in its own transaction and is recorded in the schema_migrations table so
// it is never applied twice. Versions must form a continuous sequence.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	applied, err := manager.Run(ctx)
package migration
