package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/attendance-sync/internal/application"
	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/logging"
)

const defaultInterval = 10 * time.Minute

// Reconciler yields the branch and the devices to sync this cycle.
type Reconciler interface {
	LoadAndSync(ctx context.Context) (attendance.Branch, []attendance.Device, error)
}

// Runner syncs a set of devices.
type Runner interface {
	RunAll(ctx context.Context, devices []attendance.Device, branchID int64) application.Summary
}

// Options controls the control loop.
type Options struct {
	EnableAutoSync bool
	Interval       time.Duration
	StartDelay     time.Duration
	PeakHours      []PeakHourWindow
}

// CycleResult describes one pass of the loop.
type CycleResult struct {
	Number   int64
	ID       string
	Skipped  bool
	Window   string
	CatchUp  bool
	Devices  int
	Summary  application.Summary
	Err      error
	Finished time.Time
}

// Scheduler drives periodic sync cycles around peak hours.
type Scheduler struct {
	reconciler Reconciler
	runner     Runner
	peak       *PeakHourEvaluator
	opts       Options
	wait       application.WaitFunc
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
	cycles  int64
}

// NewScheduler constructs a scheduler with the provided dependencies.
func NewScheduler(reconciler Reconciler, runner Runner, opts Options, wait application.WaitFunc, now func() time.Time) *Scheduler {
	return NewSchedulerWithLogger(reconciler, runner, opts, wait, now, nil)
}

// NewSchedulerWithLogger constructs a scheduler with a specified logger.
func NewSchedulerWithLogger(reconciler Reconciler, runner Runner, opts Options, wait application.WaitFunc, now func() time.Time, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if wait == nil {
		wait = application.SleepContext
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		reconciler: reconciler,
		runner:     runner,
		peak:       NewPeakHourEvaluator(opts.PeakHours, logger),
		opts:       opts,
		wait:       wait,
		now:        now,
		newID:      uuid.NewString,
		logger:     logger.With("component", "scheduler"),
	}
}

// LastRun returns the end of the most recent completed cycle.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Run loops until ctx is cancelled. It returns an error only when the
// initial reconciliation fails or yields no devices.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.opts.EnableAutoSync {
		s.logger.WarnContext(ctx, "auto sync disabled, scheduler not started")
		return nil
	}

	branch, devices, err := s.reconciler.LoadAndSync(ctx)
	if err != nil {
		return fmt.Errorf("initial reconciliation: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("branch %s: %w", branch.Code, application.ErrNoDevices)
	}
	s.logger.InfoContext(ctx, "scheduler started",
		"branch_code", branch.Code,
		"devices", len(devices),
		"interval", s.opts.Interval,
		"peak_windows", len(s.opts.PeakHours),
	)

	if s.opts.StartDelay > 0 {
		s.logger.InfoContext(ctx, "delaying first cycle", "delay", s.opts.StartDelay)
		if err := s.wait(ctx, s.opts.StartDelay); err != nil {
			return s.stopped(ctx)
		}
	}

	for {
		if ctx.Err() != nil {
			return s.stopped(ctx)
		}
		s.cycle(ctx, false)
		if err := s.wait(ctx, s.opts.Interval); err != nil {
			return s.stopped(ctx)
		}
	}
}

// RunOnce executes a single cycle that ignores peak hours.
func (s *Scheduler) RunOnce(ctx context.Context) CycleResult {
	return s.cycle(ctx, true)
}

func (s *Scheduler) stopped(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler stopped", "cycles", s.cycleCount())
	return nil
}

func (s *Scheduler) cycleCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

func (s *Scheduler) cycle(ctx context.Context, forced bool) (result CycleResult) {
	s.mu.Lock()
	s.cycles++
	result.Number = s.cycles
	lastRun := s.lastRun
	s.mu.Unlock()
	result.ID = s.newID()

	logger := s.logger.With("cycle", result.Number, "cycle_id", result.ID)
	ctx = logging.ContextWithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("cycle panicked: %v", r)
			logger.ErrorContext(ctx, "sync cycle panicked", "panic", fmt.Sprint(r))
		}
	}()

	now := s.now()
	if !forced {
		if peak, window := s.peak.IsPeakHour(now); peak {
			result.Skipped = true
			result.Window = window
			logger.InfoContext(ctx, "skipping sync during peak hours", "window", window, "next_in", s.opts.Interval)
			return result
		}
	}

	if catchUp, window := s.peak.ShouldCatchUp(lastRun, now); catchUp {
		result.CatchUp = true
		result.Window = window
		logger.InfoContext(ctx, "running catch-up sync after peak hours", "window", window)
	} else {
		logger.InfoContext(ctx, "sync cycle started", "forced", forced)
	}

	branch, devices, err := s.reconciler.LoadAndSync(ctx)
	switch {
	case err != nil:
		result.Err = err
		if errors.Is(err, context.Canceled) {
			return result
		}
		logger.ErrorContext(ctx, "reconciliation failed, cycle has no devices", "error", err)
	case len(devices) == 0:
		logger.WarnContext(ctx, "no active devices to sync")
	default:
		result.Devices = len(devices)
		result.Summary = s.runner.RunAll(ctx, devices, branch.ID)
	}

	result.Finished = s.now()
	s.mu.Lock()
	s.lastRun = result.Finished
	s.mu.Unlock()

	logger.InfoContext(ctx, "sync cycle finished",
		"devices", result.Devices,
		"succeeded", result.Summary.Succeeded,
		"failed", result.Summary.Failed,
	)
	return result
}
