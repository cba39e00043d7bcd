package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/device"
)

const (
	defaultBulkBatchSize  = 10000
	defaultCommandTimeout = 600 * time.Second
	finalizeTimeout       = 30 * time.Second
)

// SyncStore captures the persistence operations needed by the sync workflow.
type SyncStore interface {
	// FindExistingHashes returns the subset of hashes already persisted.
	FindExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	// BulkInsert writes records in batches of batchSize, one transaction per
	// batch, and returns how many rows were actually inserted.
	BulkInsert(ctx context.Context, records []attendance.Record, batchSize int) (int, error)
	// LatestSuccessfulSync returns the newest Success outcome for a device, or
	// nil when the device has never synced successfully.
	LatestSuccessfulSync(ctx context.Context, deviceID int64) (*attendance.SyncOutcome, error)
	SaveOutcome(ctx context.Context, outcome attendance.SyncOutcome) error
	UpdateDeviceConnectionStatus(ctx context.Context, deviceID int64, online bool, label string) error
	SaveDeviceStatus(ctx context.Context, status attendance.DeviceStatus) error
}

// RecordRelay forwards newly persisted records to a central server.
type RecordRelay interface {
	Send(ctx context.Context, records []attendance.Record, branchID, deviceID int64) error
}

// SyncOptions tunes a single device sync.
type SyncOptions struct {
	SyncLastNDays      int
	SyncAllOnFirstTime bool
	BulkBatchSize      int
	CommandTimeout     time.Duration
	ServerName         string
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.BulkBatchSize <= 0 {
		o.BulkBatchSize = defaultBulkBatchSize
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
	return o
}

// SyncRequest identifies one workflow invocation.
type SyncRequest struct {
	Device       attendance.Device
	BranchID     int64
	RetryAttempt int
}

// SyncService runs the per-device incremental sync workflow.
type SyncService struct {
	store       SyncStore
	drivers     device.Factory
	relay       RecordRelay
	opts        SyncOptions
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSyncService constructs a sync service with the provided dependencies.
func NewSyncService(store SyncStore, drivers device.Factory, opts SyncOptions, idGenerator func() string, now func() time.Time) *SyncService {
	return NewSyncServiceWithLogger(store, drivers, opts, idGenerator, now, nil)
}

// NewSyncServiceWithLogger constructs a sync service with a specified logger.
func NewSyncServiceWithLogger(store SyncStore, drivers device.Factory, opts SyncOptions, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SyncService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SyncService{
		store:       store,
		drivers:     drivers,
		opts:        opts.withDefaults(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// SetRelay installs a relay invoked after syncs that persisted new records.
func (s *SyncService) SetRelay(relay RecordRelay) {
	s.relay = relay
}

func (s *SyncService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SyncService", operation, attrs...)
}

// SyncDevice connects to one device, ingests its new punches and records the
// outcome. Exactly one outcome is persisted per call. A non-nil error is
// returned whenever the outcome is Failed.
func (s *SyncService) SyncDevice(ctx context.Context, req SyncRequest) (outcome attendance.SyncOutcome, err error) {
	if s == nil {
		err = fmt.Errorf("SyncService is nil")
		return
	}

	dev := req.Device
	logger := s.loggerWith(ctx, "SyncDevice",
		"device_id", dev.ID,
		"device_addr", fmt.Sprintf("%s:%d", dev.IP, dev.Port),
		"branch_id", req.BranchID,
		"attempt", req.RetryAttempt,
	)

	outcome = attendance.SyncOutcome{
		ID:           s.idGenerator(),
		DeviceID:     dev.ID,
		BranchID:     req.BranchID,
		StartTime:    s.now(),
		Status:       attendance.StatusInProgress,
		RetryAttempt: req.RetryAttempt,
		ServerName:   s.opts.ServerName,
	}

	driver := s.drivers(dev)
	connected := false

	defer func() {
		// The outcome row must survive cancellation of the caller.
		finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()

		if err != nil {
			outcome.Fail(s.now(), err)
			if connected {
				s.updateConnection(finalCtx, logger, dev.ID, false, attendance.ConnectionError)
			}
		} else {
			outcome.Succeed(s.now(), outcome.NewCount, outcome.DuplicateCount)
		}

		if connected {
			if disconnectErr := driver.Disconnect(finalCtx); disconnectErr != nil {
				logger.WarnContext(ctx, "disconnect failed", "error", disconnectErr)
			}
		}

		if saveErr := s.store.SaveOutcome(finalCtx, outcome); saveErr != nil {
			logger.ErrorContext(ctx, "failed to persist sync outcome", "outcome_id", outcome.ID, "error", saveErr)
			if err == nil {
				err = fmt.Errorf("%w: save outcome: %v", ErrPersistence, saveErr)
			}
		}

		switch {
		case err == nil:
			logger.InfoContext(ctx, "device sync completed",
				"fetched", outcome.FetchedCount,
				"new", outcome.NewCount,
				"duplicates", outcome.DuplicateCount,
				"duration", outcome.Duration(),
			)
		case isCancellation(err):
			logger.InfoContext(ctx, "device sync cancelled", "duration", outcome.Duration())
		default:
			logger.ErrorContext(ctx, "device sync failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = ctx.Err(); err != nil {
		return
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, s.opts.CommandTimeout)
	err = driver.Connect(connectCtx, dev.IP, dev.Port)
	cancelConnect()
	if err != nil {
		s.updateConnection(context.WithoutCancel(ctx), logger, dev.ID, false, attendance.ConnectionDisconnected)
		return
	}
	connected = true
	s.updateConnection(ctx, logger, dev.ID, true, attendance.ConnectionConnected)

	s.captureStatus(ctx, logger, driver, dev.ID, req.BranchID)

	floor, err := s.watermarkFloor(ctx, dev.ID)
	if err != nil {
		return
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, s.opts.CommandTimeout)
	fetched, err := driver.FetchRecords(fetchCtx, dev.ID, req.BranchID)
	cancelFetch()
	if err != nil {
		return
	}
	outcome.FetchedCount = len(fetched)

	filtered := attendance.FilterSince(fetched, floor)
	logger.DebugContext(ctx, "records filtered by watermark",
		"fetched", len(fetched),
		"kept", len(filtered),
		"floor", floor,
	)
	if len(filtered) == 0 {
		return
	}

	if err = ctx.Err(); err != nil {
		return
	}
	existing, err := s.store.FindExistingHashes(ctx, attendance.Hashes(filtered))
	if err != nil {
		err = fmt.Errorf("%w: find existing hashes: %v", ErrPersistence, err)
		return
	}
	fresh, _ := attendance.Partition(filtered, existing)

	inserted := 0
	if len(fresh) > 0 {
		inserted, err = s.store.BulkInsert(ctx, fresh, s.opts.BulkBatchSize)
		if err != nil {
			err = fmt.Errorf("%w: bulk insert: %v", ErrPersistence, err)
			return
		}
	}
	outcome.NewCount = inserted
	outcome.DuplicateCount = len(filtered) - inserted

	if inserted > 0 && s.relay != nil {
		if relayErr := s.relay.Send(ctx, fresh, req.BranchID, dev.ID); relayErr != nil {
			logger.WarnContext(ctx, "upstream relay failed", "records", len(fresh), "error", relayErr)
		}
	}
	return
}

// watermarkFloor derives the earliest punch time worth processing. The latest
// successful sync is read fresh on every call.
func (s *SyncService) watermarkFloor(ctx context.Context, deviceID int64) (*time.Time, error) {
	latest, err := s.store.LatestSuccessfulSync(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: latest successful sync: %v", ErrPersistence, err)
	}
	if latest == nil && s.opts.SyncAllOnFirstTime {
		return nil, nil
	}
	if s.opts.SyncLastNDays <= 0 {
		return nil, nil
	}
	floor := s.now().AddDate(0, 0, -s.opts.SyncLastNDays)
	return &floor, nil
}

func (s *SyncService) captureStatus(ctx context.Context, logger *slog.Logger, driver device.Driver, deviceID, branchID int64) {
	status, err := driver.StatusSnapshot(ctx, deviceID, branchID)
	if err != nil {
		logger.WarnContext(ctx, "device status snapshot failed", "error", err)
		return
	}
	if err := s.store.SaveDeviceStatus(ctx, status); err != nil {
		logger.WarnContext(ctx, "failed to persist device status", "error", err)
	}
}

func (s *SyncService) updateConnection(ctx context.Context, logger *slog.Logger, deviceID int64, online bool, label string) {
	if err := s.store.UpdateDeviceConnectionStatus(ctx, deviceID, online, label); err != nil {
		logger.WarnContext(ctx, "failed to update device connection status", "status", label, "error", err)
	}
}
