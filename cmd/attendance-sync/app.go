package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/attendance-sync/internal/application"
	"github.com/example/attendance-sync/internal/config"
	"github.com/example/attendance-sync/internal/device"
	"github.com/example/attendance-sync/internal/device/simulator"
	"github.com/example/attendance-sync/internal/persistence/sqlite"
	"github.com/example/attendance-sync/internal/scheduler"
	"github.com/example/attendance-sync/internal/upstream"
)

const retryBackoffBase = time.Second

// app holds the wired service graph for one process.
type app struct {
	env       config.Config
	file      config.File
	storage   *sqlite.Storage
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// openStorage opens and migrates the database named by env.
func openStorage(ctx context.Context, env config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	storage, err := sqlite.Open(env.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		if cerr := storage.Close(); cerr != nil {
			logger.ErrorContext(ctx, "failed to close storage", "error", cerr)
		}
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return storage, nil
}

func newApp(ctx context.Context, env config.Config, logger *slog.Logger) (*app, error) {
	file, err := config.LoadFile(env.ConfigFile)
	if err != nil {
		return nil, err
	}

	drivers, err := newDriverFactory(file.Driver, logger)
	if err != nil {
		return nil, err
	}

	storage, err := openStorage(ctx, env, logger)
	if err != nil {
		return nil, err
	}

	syncService := application.NewSyncServiceWithLogger(storage, drivers, application.SyncOptions{
		SyncLastNDays:      file.Sync.SyncLastNDays,
		SyncAllOnFirstTime: file.Sync.AllOnFirstTime(),
		BulkBatchSize:      file.Sync.BulkBatchSize,
		CommandTimeout:     file.Sync.CommandTimeout(),
		ServerName:         env.ServerName,
	}, uuid.NewString, time.Now, logger)

	if file.Upstream.Enabled {
		client, err := upstream.New(upstream.Settings{
			BaseURL:      file.Upstream.BaseURL,
			SyncEndpoint: file.Upstream.SyncEndpoint,
			APIKey:       file.Upstream.APIKey,
			SigningKey:   file.Upstream.SigningKey,
			Timeout:      time.Duration(file.Upstream.TimeoutSeconds) * time.Second,
			RetryCount:   file.Upstream.RetryCount,
		}, upstream.WithLogger(logger))
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
		syncService.SetRelay(client)
	}

	orchestrator := application.NewOrchestratorWithLogger(syncService, application.OrchestratorOptions{
		MaxConcurrentDevices: file.Sync.MaxConcurrentDevices,
		MaxRetryAttempts:     file.Sync.MaxRetryAttempts,
		BackoffBase:          retryBackoffBase,
	}, application.SleepContext, logger)

	reconciler := application.NewReconcilerWithLogger(storage, application.FileSource(env.ConfigFile), logger)

	opts := scheduler.Options{
		EnableAutoSync: file.Sync.AutoSync(),
		Interval:       file.Sync.Interval(),
		StartDelay:     file.Sync.StartDelay(),
	}
	for _, w := range file.Sync.PeakHours {
		opts.PeakHours = append(opts.PeakHours, scheduler.PeakHourWindow{
			Name:                w.Name,
			Start:               w.StartTime,
			End:                 w.EndTime,
			RunImmediatelyAfter: w.RunImmediatelyAfter,
		})
	}

	return &app{
		env:       env,
		file:      file,
		storage:   storage,
		scheduler: scheduler.NewSchedulerWithLogger(reconciler, orchestrator, opts, application.SleepContext, time.Now, logger),
		logger:    logger,
	}, nil
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func newDriverFactory(cfg config.DriverConfig, logger *slog.Logger) (device.Factory, error) {
	switch cfg.Kind {
	case "simulator":
		loc, err := cfg.Location()
		if err != nil {
			return nil, fmt.Errorf("driver timezone: %w", err)
		}
		fleet := simulator.NewFleet(logger)
		fleet.Location = loc
		fleet.Provision = simulator.SeededProvisioner(cfg.SimulatedUsers, cfg.SimulatedDays, time.Now)
		return fleet.Factory(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver kind %q", application.ErrConfiguration, cfg.Kind)
	}
}
