package migration

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultSQLiteConfig(filepath.Join(t.TempDir(), "migrate.db"))
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScanner(t *testing.T) {
	t.Run("orders by numeric version and ignores other files", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/010_late.sql":           {Data: []byte("CREATE TABLE c (id INTEGER);")},
			"m/002_second.sql":         {Data: []byte("-- Description: adds b\nCREATE TABLE b (id INTEGER);")},
			"m/001_initial_schema.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
			"m/README.md":              {Data: []byte("# notes")},
			"m/nested/003_ignored.sql": {Data: []byte("CREATE TABLE d (id INTEGER);")},
		}
		migrations, err := NewScanner(fsys, "m").Scan()
		require.NoError(t, err)
		require.Len(t, migrations, 3)
		assert.Equal(t, []string{"001", "002", "010"}, []string{migrations[0].Version, migrations[1].Version, migrations[2].Version})
		assert.Equal(t, "initial schema", migrations[0].Description)
		assert.Equal(t, "adds b", migrations[1].Description)
		assert.Len(t, migrations[0].Checksum, 64)
	})

	t.Run("rejects bad names", func(t *testing.T) {
		fsys := fstest.MapFS{"m/initial.sql": {Data: []byte("SELECT 1;")}}
		_, err := NewScanner(fsys, "m").Scan()
		assert.ErrorIs(t, err, ErrInvalidMigrationFile)
	})

	t.Run("rejects comment-only files", func(t *testing.T) {
		fsys := fstest.MapFS{"m/001_empty.sql": {Data: []byte("-- nothing here\n")}}
		_, err := NewScanner(fsys, "m").Scan()
		assert.ErrorIs(t, err, ErrInvalidMigrationFile)
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/001_a.sql":  {Data: []byte("SELECT 1;")},
			"m/0001_b.sql": {Data: []byte("SELECT 1;")},
			"m/001_c.sql":  {Data: []byte("SELECT 1;")},
		}
		_, err := NewScanner(fsys, "m").Scan()
		assert.ErrorIs(t, err, ErrDuplicateVersion)
	})
}

func TestSplitStatements(t *testing.T) {
	statements := splitStatements(`
-- leading comment
CREATE TABLE a (id INTEGER);

-- second
CREATE INDEX idx_a ON a(id);
`)
	assert.Equal(t, []string{"CREATE TABLE a (id INTEGER)", "CREATE INDEX idx_a ON a(id)"}, statements)
}

func TestManagerRun(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{
		"m/001_people.sql": {Data: []byte("CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"m/002_pets.sql":   {Data: []byte("CREATE TABLE pets (id INTEGER PRIMARY KEY, owner_id INTEGER REFERENCES people(id));\nCREATE INDEX idx_pets_owner ON pets(owner_id);")},
	}
	db := openTestDB(t)
	manager := NewManager(NewScanner(fsys, "m"), NewSQLiteExecutor(db), quietLogger())

	applied, err := manager.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = manager.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "002", status.CurrentVersion)
	assert.Empty(t, status.Pending)
	require.Len(t, status.Applied, 2)

	_, err = db.ExecContext(ctx, "INSERT INTO people (id, name) VALUES (1, 'a')")
	require.NoError(t, err)
}

func TestManagerRollsBackFailedMigration(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE half (id INTEGER);\nCREATE TABLE ok (id INTEGER);")},
	}
	db := openTestDB(t)
	manager := NewManager(NewScanner(fsys, "m"), NewSQLiteExecutor(db), quietLogger())

	applied, err := manager.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMigrationFailed)
	assert.Equal(t, 1, applied)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'").Scan(&count))
	assert.Zero(t, count)

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "001", status.CurrentVersion)
	require.Len(t, status.Pending, 1)
}

func TestManagerValidatesSequence(t *testing.T) {
	ctx := context.Background()

	t.Run("gap", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
			"m/003_c.sql": {Data: []byte("CREATE TABLE c (id INTEGER);")},
		}
		_, err := NewManager(NewScanner(fsys, "m"), NewSQLiteExecutor(openTestDB(t)), quietLogger()).Run(ctx)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("edited after apply", func(t *testing.T) {
		db := openTestDB(t)
		original := fstest.MapFS{"m/001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")}}
		_, err := NewManager(NewScanner(original, "m"), NewSQLiteExecutor(db), quietLogger()).Run(ctx)
		require.NoError(t, err)

		edited := fstest.MapFS{"m/001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER, extra TEXT);")}}
		_, err = NewManager(NewScanner(edited, "m"), NewSQLiteExecutor(db), quietLogger()).Run(ctx)
		assert.True(t, errors.Is(err, ErrChecksumMismatch))
	})
}

func TestWithPragmas(t *testing.T) {
	cfg := DefaultSQLiteConfig("data/attendance.db")
	dsn := withPragmas(cfg)
	assert.Contains(t, dsn, "file:data/attendance.db?")
	assert.Contains(t, dsn, "_pragma=busy_timeout%2830000%29")
	assert.Contains(t, dsn, "_pragma=foreign_keys%281%29")
	assert.Contains(t, dsn, "_pragma=journal_mode%28WAL%29")

	cfg.DSN = "file:x.db?_pragma=busy_timeout(5000)"
	dsn = withPragmas(cfg)
	assert.NotContains(t, dsn, "busy_timeout%2830000%29")
	assert.Contains(t, dsn, "file:x.db?_pragma=busy_timeout(5000)&")

	assert.Equal(t, "data/attendance.db", filePath("file:data/attendance.db?mode=rwc"))
	assert.Empty(t, filePath(":memory:"))
	assert.Error(t, SQLiteConfig{}.Validate())
	assert.Error(t, SQLiteConfig{DSN: "x", JournalMode: "BOGUS"}.Validate())
}
