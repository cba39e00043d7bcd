package testfixtures

import (
	"context"
	"sync"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/device"
)

// ScriptedDriver is a device.Driver whose behaviour is set up front by a test.
type ScriptedDriver struct {
	ConnectErr error
	FetchErr   error
	StatusErr  error
	Records    []attendance.Record
	Status     attendance.DeviceStatus
	// FetchStarted, when non-nil, receives a value as FetchRecords begins.
	FetchStarted chan struct{}
	// BlockFetch, when non-nil, holds FetchRecords until it is closed or the
	// context is done.
	BlockFetch chan struct{}

	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
	fetches     int
}

var _ device.Driver = (*ScriptedDriver)(nil)

// Connect implements device.Driver.
func (d *ScriptedDriver) Connect(ctx context.Context, _ string, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	if d.ConnectErr != nil {
		return d.ConnectErr
	}
	d.connected = true
	return nil
}

// Disconnect implements device.Driver.
func (d *ScriptedDriver) Disconnect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	d.connected = false
	return nil
}

// IsConnected implements device.Driver.
func (d *ScriptedDriver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// FetchRecords implements device.Driver.
func (d *ScriptedDriver) FetchRecords(ctx context.Context, deviceID, branchID int64) ([]attendance.Record, error) {
	d.mu.Lock()
	d.fetches++
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		return nil, device.ErrNotConnected
	}

	if d.FetchStarted != nil {
		d.FetchStarted <- struct{}{}
	}
	if d.BlockFetch != nil {
		select {
		case <-d.BlockFetch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.FetchErr != nil {
		return nil, d.FetchErr
	}

	out := make([]attendance.Record, len(d.Records))
	for i, record := range d.Records {
		record.DeviceID = deviceID
		record.BranchID = branchID
		record.Hash = attendance.HashOf(record)
		out[i] = record
	}
	return out, nil
}

// StatusSnapshot implements device.Driver.
func (d *ScriptedDriver) StatusSnapshot(ctx context.Context, deviceID, branchID int64) (attendance.DeviceStatus, error) {
	if d.StatusErr != nil {
		return attendance.DeviceStatus{}, d.StatusErr
	}
	status := d.Status
	status.DeviceID = deviceID
	status.BranchID = branchID
	status.IsOnline = true
	status.LogCount = len(d.Records)
	return status, nil
}

// Calls reports connect, disconnect and fetch counts.
func (d *ScriptedDriver) Calls() (connects, disconnects, fetches int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects, d.disconnects, d.fetches
}

// DriverFleet hands out one scripted driver per device ID.
type DriverFleet struct {
	mu      sync.Mutex
	drivers map[int64]*ScriptedDriver
}

// NewDriverFleet returns an empty fleet.
func NewDriverFleet() *DriverFleet {
	return &DriverFleet{drivers: make(map[int64]*ScriptedDriver)}
}

// Script returns the driver for deviceID, creating it on first use. The same
// driver is returned to every workflow for that device.
func (f *DriverFleet) Script(deviceID int64) *ScriptedDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[deviceID]
	if !ok {
		d = &ScriptedDriver{}
		f.drivers[deviceID] = d
	}
	return d
}

// Factory implements device.Factory over the fleet.
func (f *DriverFleet) Factory() device.Factory {
	return func(dev attendance.Device) device.Driver {
		return f.Script(dev.ID)
	}
}
