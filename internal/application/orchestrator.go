package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/example/attendance-sync/internal/attendance"
)

const defaultMaxConcurrentDevices = 5

// DeviceSyncer runs one sync attempt for one device.
type DeviceSyncer interface {
	SyncDevice(ctx context.Context, req SyncRequest) (attendance.SyncOutcome, error)
}

// OrchestratorOptions bounds fan-out and retries.
type OrchestratorOptions struct {
	MaxConcurrentDevices int
	MaxRetryAttempts     int
	// BackoffBase scales the wait before attempt i to 2^i * BackoffBase.
	BackoffBase time.Duration
}

// Summary aggregates one RunAll call.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production WaitFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Orchestrator fans devices out to a DeviceSyncer under a concurrency cap.
type Orchestrator struct {
	syncer DeviceSyncer
	opts   OrchestratorOptions
	wait   WaitFunc
	now    func() time.Time
	logger *slog.Logger
}

// NewOrchestrator constructs an orchestrator with the provided dependencies.
func NewOrchestrator(syncer DeviceSyncer, opts OrchestratorOptions, wait WaitFunc) *Orchestrator {
	return NewOrchestratorWithLogger(syncer, opts, wait, nil)
}

// NewOrchestratorWithLogger constructs an orchestrator with a specified logger.
func NewOrchestratorWithLogger(syncer DeviceSyncer, opts OrchestratorOptions, wait WaitFunc, logger *slog.Logger) *Orchestrator {
	if opts.MaxConcurrentDevices <= 0 {
		opts.MaxConcurrentDevices = defaultMaxConcurrentDevices
	}
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if wait == nil {
		wait = SleepContext
	}
	return &Orchestrator{syncer: syncer, opts: opts, wait: wait, now: time.Now, logger: defaultLogger(logger)}
}

// Backoff returns the wait before the given zero-based attempt.
func (o *Orchestrator) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(1<<uint(attempt)) * o.opts.BackoffBase
}

// RunAll syncs every device and returns the aggregate. Partial failure is
// reported in the summary, never as an error.
func (o *Orchestrator) RunAll(ctx context.Context, devices []attendance.Device, branchID int64) Summary {
	logger := serviceLogger(ctx, o.logger, "Orchestrator", "RunAll",
		"branch_id", branchID,
		"devices", len(devices),
		"max_concurrent", o.opts.MaxConcurrentDevices,
	)
	if len(devices) == 0 {
		logger.WarnContext(ctx, "no devices to sync")
		return Summary{}
	}

	start := o.now()
	var (
		mu      sync.Mutex
		summary = Summary{Total: len(devices)}
	)
	record := func(ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	gate := semaphore.NewWeighted(int64(o.opts.MaxConcurrentDevices))
	var group errgroup.Group

	for i, dev := range devices {
		dev := dev
		if err := gate.Acquire(ctx, 1); err != nil {
			logger.InfoContext(ctx, "sync run cancelled before all devices started", "pending", len(devices)-i)
			for range devices[i:] {
				record(false)
			}
			break
		}
		group.Go(func() error {
			defer gate.Release(1)
			record(o.syncWithRetry(ctx, logger, dev, branchID))
			return nil
		})
	}
	_ = group.Wait()

	summary.Duration = o.now().Sub(start)
	logger.InfoContext(ctx, "sync run completed",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return summary
}

func (o *Orchestrator) syncWithRetry(ctx context.Context, base *slog.Logger, dev attendance.Device, branchID int64) (ok bool) {
	logger := base.With("device_id", dev.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "device worker panicked", "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	var lastErr error
	for attempt := 0; attempt < o.opts.MaxRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := o.Backoff(attempt)
			logger.InfoContext(ctx, "retrying device sync", "attempt", attempt+1, "delay", delay)
			if err := o.wait(ctx, delay); err != nil {
				return false
			}
		}

		_, err := o.syncer.SyncDevice(ctx, SyncRequest{Device: dev, BranchID: branchID, RetryAttempt: attempt})
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		lastErr = err
	}

	logger.ErrorContext(ctx, "device sync attempts exhausted",
		"attempts", o.opts.MaxRetryAttempts,
		"error", lastErr,
		"error_kind", ErrorKind(lastErr),
	)
	return false
}
