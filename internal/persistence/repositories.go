package persistence

import (
	"context"

	"github.com/example/attendance-sync/internal/attendance"
)

// AttendanceRepository stores punches keyed by their content hash.
type AttendanceRepository interface {
	FindExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	// BulkInsert writes records in batches of batchSize, one transaction per
	// batch. Rows whose hash already exists are skipped. It returns the number
	// of rows inserted, including those of batches committed before a failure.
	BulkInsert(ctx context.Context, records []attendance.Record, batchSize int) (int, error)
	CountAttendance(ctx context.Context, deviceID int64) (int, error)
}

// SyncLogRepository stores the audit trail of sync attempts.
type SyncLogRepository interface {
	SaveOutcome(ctx context.Context, outcome attendance.SyncOutcome) error
	LatestSuccessfulSync(ctx context.Context, deviceID int64) (*attendance.SyncOutcome, error)
	ListSyncLogs(ctx context.Context, filter SyncLogFilter) ([]attendance.SyncOutcome, error)
}

// RegistryRepository stores branches, devices and their status.
type RegistryRepository interface {
	UpsertBranch(ctx context.Context, branch attendance.Branch) (attendance.Branch, error)
	GetBranchByCode(ctx context.Context, code string) (attendance.Branch, error)
	// UpsertDevice matches an existing device by IP and port.
	UpsertDevice(ctx context.Context, device attendance.Device) (attendance.Device, error)
	GetDevice(ctx context.Context, id int64) (attendance.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]attendance.Device, error)
	UpdateDeviceConnectionStatus(ctx context.Context, deviceID int64, online bool, label string) error
	SaveDeviceStatus(ctx context.Context, status attendance.DeviceStatus) error
	DeviceOverviews(ctx context.Context, branchID *int64) ([]DeviceOverview, error)
}
