package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
	"github.com/example/attendance-sync/internal/testfixtures"
)

type attendanceStore interface {
	persistence.AttendanceRepository
	persistence.SyncLogRepository
}

// storeUnderTest yields a fresh store and a device it can hold records for.
type storeUnderTest func(t *testing.T) (attendanceStore, attendance.Device)

func stores() map[string]storeUnderTest {
	return map[string]storeUnderTest{
		"sqlite": func(t *testing.T) (attendanceStore, attendance.Device) {
			harness := testfixtures.NewSQLiteHarness(t)
			_, devices := harness.SeedDevices(t, 1)
			return harness.Storage, devices[0]
		},
		"memory": func(t *testing.T) (attendanceStore, attendance.Device) {
			return testfixtures.NewMemoryStore(), testfixtures.NewDeviceFixture().Device()
		},
	}
}

func TestAttendanceRepositoryContract(t *testing.T) {
	t.Parallel()

	for name, open := range stores() {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store, dev := open(t)

			records := testfixtures.Punches(dev.ID, dev.BranchID, testfixtures.ReferenceTime(), 5)

			existing, err := store.FindExistingHashes(ctx, attendance.Hashes(records))
			require.NoError(t, err)
			assert.Empty(t, existing)

			inserted, err := store.BulkInsert(ctx, records[:3], 2)
			require.NoError(t, err)
			assert.Equal(t, 3, inserted)

			existing, err = store.FindExistingHashes(ctx, attendance.Hashes(records))
			require.NoError(t, err)
			assert.Len(t, existing, 3)
			assert.NotContains(t, existing, records[4].Hash)

			inserted, err = store.BulkInsert(ctx, records, 2)
			require.NoError(t, err)
			assert.Equal(t, 2, inserted, "only unseen hashes are inserted")

			count, err := store.CountAttendance(ctx, dev.ID)
			require.NoError(t, err)
			assert.Equal(t, 5, count)
		})
	}
}

func TestSyncLogRepositoryContract(t *testing.T) {
	t.Parallel()

	for name, open := range stores() {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store, dev := open(t)
			base := testfixtures.ReferenceTime()

			latest, err := store.LatestSuccessfulSync(ctx, dev.ID)
			require.NoError(t, err)
			assert.Nil(t, latest)

			save := func(id string, offset time.Duration, status attendance.SyncStatus) {
				t.Helper()
				start := base.Add(offset)
				end := start.Add(30 * time.Second)
				require.NoError(t, store.SaveOutcome(ctx, attendance.SyncOutcome{
					ID: id, DeviceID: dev.ID, BranchID: dev.BranchID,
					StartTime: start, EndTime: &end, Status: status,
				}))
			}
			save("a", 0, attendance.StatusSuccess)
			save("b", time.Hour, attendance.StatusSuccess)
			save("c", 2*time.Hour, attendance.StatusFailed)

			latest, err = store.LatestSuccessfulSync(ctx, dev.ID)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, "b", latest.ID)

			since := base.Add(30 * time.Minute)
			logs, err := store.ListSyncLogs(ctx, persistence.SyncLogFilter{DeviceID: &dev.ID, Since: &since})
			require.NoError(t, err)
			require.Len(t, logs, 2)
			assert.Equal(t, "c", logs[0].ID)
			assert.Equal(t, "b", logs[1].ID)

			logs, err = store.ListSyncLogs(ctx, persistence.SyncLogFilter{Status: string(attendance.StatusSuccess), Limit: 1})
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, "b", logs[0].ID)
		})
	}
}
