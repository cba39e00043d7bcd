package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/config"
	"github.com/example/attendance-sync/internal/persistence"
)

// DeviceRegistry captures the registry operations needed to reconcile the
// declared configuration.
type DeviceRegistry interface {
	UpsertBranch(ctx context.Context, branch attendance.Branch) (attendance.Branch, error)
	UpsertDevice(ctx context.Context, device attendance.Device) (attendance.Device, error)
	ListDevices(ctx context.Context, filter persistence.DeviceFilter) ([]attendance.Device, error)
}

// ConfigSource returns the declared configuration. It is called on every
// reconciliation so edits to the file are picked up by the next cycle.
type ConfigSource func(ctx context.Context) (config.File, error)

// FileSource reads and validates the YAML file at path.
func FileSource(path string) ConfigSource {
	return func(context.Context) (config.File, error) {
		return config.LoadFile(path)
	}
}

// StaticSource always returns file.
func StaticSource(file config.File) ConfigSource {
	return func(context.Context) (config.File, error) {
		return file, nil
	}
}

// Reconciler aligns the device registry with the declared configuration.
type Reconciler struct {
	registry DeviceRegistry
	source   ConfigSource
	logger   *slog.Logger
}

// NewReconciler constructs a reconciler with the provided dependencies.
func NewReconciler(registry DeviceRegistry, source ConfigSource) *Reconciler {
	return NewReconcilerWithLogger(registry, source, nil)
}

// NewReconcilerWithLogger constructs a reconciler with a specified logger.
func NewReconcilerWithLogger(registry DeviceRegistry, source ConfigSource, logger *slog.Logger) *Reconciler {
	return &Reconciler{registry: registry, source: source, logger: defaultLogger(logger)}
}

// LoadAndSync upserts the declared branch and its active devices, then adds
// active registry devices of the branch that the configuration does not
// mention. Any failure is wrapped in ErrConfiguration.
func (r *Reconciler) LoadAndSync(ctx context.Context) (branch attendance.Branch, devices []attendance.Device, err error) {
	logger := serviceLogger(ctx, r.logger, "Reconciler", "LoadAndSync")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "configuration reconciliation failed", "error", err, "error_kind", ErrorKind(err))
			err = fmt.Errorf("%w: %w", ErrConfiguration, err)
			branch, devices = attendance.Branch{}, nil
		}
	}()

	file, err := r.source(ctx)
	if err != nil {
		return
	}

	branch, err = r.registry.UpsertBranch(ctx, attendance.Branch{
		Code:     file.Branch.Code,
		Name:     file.Branch.Name,
		City:     file.Branch.City,
		IsActive: true,
	})
	if err != nil {
		err = fmt.Errorf("upsert branch %s: %w", file.Branch.Code, err)
		return
	}
	logger = logger.With("branch_id", branch.ID, "branch_code", branch.Code)

	declared := make(map[string]struct{}, len(file.Devices))
	seen := make(map[int64]struct{}, len(file.Devices))
	for _, dc := range file.Devices {
		declared[deviceKey(dc.IP, dc.Port)] = struct{}{}
		if !dc.Active() {
			logger.InfoContext(ctx, "skipping inactive device", "device_name", dc.Name)
			continue
		}

		var dev attendance.Device
		dev, err = r.registry.UpsertDevice(ctx, attendance.Device{
			Name:     dc.Name,
			IP:       strings.TrimSpace(dc.IP),
			Port:     dc.Port,
			BranchID: branch.ID,
			IsActive: true,
		})
		if err != nil {
			err = fmt.Errorf("upsert device %s: %w", deviceKey(dc.IP, dc.Port), err)
			return
		}
		seen[dev.ID] = struct{}{}
		devices = append(devices, dev)
	}

	registered, err := r.registry.ListDevices(ctx, persistence.DeviceFilter{BranchID: &branch.ID, ActiveOnly: true})
	if err != nil {
		err = fmt.Errorf("list registered devices: %w", err)
		return
	}
	for _, dev := range registered {
		if _, ok := declared[deviceKey(dev.IP, dev.Port)]; ok {
			continue
		}
		if _, ok := seen[dev.ID]; ok {
			continue
		}
		logger.WarnContext(ctx, "device registered but not declared in configuration",
			"device_id", dev.ID,
			"device_addr", deviceKey(dev.IP, dev.Port),
		)
		seen[dev.ID] = struct{}{}
		devices = append(devices, dev)
	}

	logger.InfoContext(ctx, "configuration reconciled", "active_devices", len(devices))
	return branch, devices, nil
}

func deviceKey(ip string, port int) string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(ip), port)
}
