package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
	"github.com/example/attendance-sync/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database.
type SQLiteHarness struct {
	Storage    *sqlite.Storage
	Attendance persistence.AttendanceRepository
	SyncLogs   persistence.SyncLogRepository
	Registry   persistence.RegistryRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database under tb.TempDir. Close is
// also registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	storage, err := sqlite.Open(filepath.Join(tb.TempDir(), "attendance.db"))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	storage.SetClock(ReferenceTime)

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:    storage,
		Attendance: storage,
		SyncLogs:   storage,
		Registry:   storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedDevices registers a branch and n active devices, returning them with
// their assigned IDs.
func (h *SQLiteHarness) SeedDevices(tb testing.TB, n int) (attendance.Branch, []attendance.Device) {
	tb.Helper()
	ctx := context.Background()

	branch, err := h.Registry.UpsertBranch(ctx, NewBranchFixture().Branch())
	if err != nil {
		tb.Fatalf("failed to seed branch: %v", err)
	}
	devices := make([]attendance.Device, 0, n)
	for i := 0; i < n; i++ {
		dev, err := h.Registry.UpsertDevice(ctx, NewDeviceFixture(WithDeviceBranch(branch.ID)).Device())
		if err != nil {
			tb.Fatalf("failed to seed device: %v", err)
		}
		devices = append(devices, dev)
	}
	return branch, devices
}
