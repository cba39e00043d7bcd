package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/attendance-sync/internal/attendance"
)

var (
	branchCounter uint64
	deviceCounter uint64
)

var referenceTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Branch fixtures -----------------------------

// BranchFixture is a deterministic branch.
type BranchFixture struct {
	ID   int64
	Code string
	Name string
	City string
}

// BranchOption customises a BranchFixture.
type BranchOption func(*BranchFixture)

// NewBranchFixture returns a branch with a unique code.
func NewBranchFixture(opts ...BranchOption) BranchFixture {
	seq := atomic.AddUint64(&branchCounter, 1)
	fixture := BranchFixture{
		ID:   int64(seq),
		Code: fmt.Sprintf("BR%03d", seq),
		Name: fmt.Sprintf("Branch %d", seq),
		City: "Riyadh",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBranchID overrides the branch identifier.
func WithBranchID(id int64) BranchOption {
	return func(f *BranchFixture) { f.ID = id }
}

// WithBranchCode overrides the branch code.
func WithBranchCode(code string) BranchOption {
	return func(f *BranchFixture) { f.Code = code }
}

// Branch materialises the fixture.
func (f BranchFixture) Branch() attendance.Branch {
	return attendance.Branch{ID: f.ID, Code: f.Code, Name: f.Name, City: f.City, IsActive: true}
}

// ----------------------------- Device fixtures -----------------------------

// DeviceFixture is a deterministic terminal registration.
type DeviceFixture struct {
	ID       int64
	Name     string
	IP       string
	Port     int
	BranchID int64
	Active   bool
}

// DeviceOption customises a DeviceFixture.
type DeviceOption func(*DeviceFixture)

// NewDeviceFixture returns an active device on a unique address.
func NewDeviceFixture(opts ...DeviceOption) DeviceFixture {
	seq := atomic.AddUint64(&deviceCounter, 1)
	fixture := DeviceFixture{
		ID:       int64(seq),
		Name:     fmt.Sprintf("Terminal %d", seq),
		IP:       fmt.Sprintf("10.0.%d.%d", seq/250, seq%250+1),
		Port:     4370,
		BranchID: 1,
		Active:   true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithDeviceID overrides the device identifier.
func WithDeviceID(id int64) DeviceOption {
	return func(f *DeviceFixture) { f.ID = id }
}

// WithDeviceAddr overrides the device address.
func WithDeviceAddr(ip string, port int) DeviceOption {
	return func(f *DeviceFixture) {
		f.IP = ip
		f.Port = port
	}
}

// WithDeviceBranch assigns the device to a branch.
func WithDeviceBranch(branchID int64) DeviceOption {
	return func(f *DeviceFixture) { f.BranchID = branchID }
}

// WithDeviceInactive marks the device inactive.
func WithDeviceInactive() DeviceOption {
	return func(f *DeviceFixture) { f.Active = false }
}

// Device materialises the fixture.
func (f DeviceFixture) Device() attendance.Device {
	return attendance.Device{
		ID:               f.ID,
		Name:             f.Name,
		IP:               f.IP,
		Port:             f.Port,
		BranchID:         f.BranchID,
		IsActive:         f.Active,
		ConnectionStatus: attendance.ConnectionNotConnected,
	}
}

// Devices returns n devices with IDs 1..n on branch 1.
func Devices(n int) []attendance.Device {
	devices := make([]attendance.Device, n)
	for i := range devices {
		devices[i] = NewDeviceFixture(
			WithDeviceID(int64(i+1)),
			WithDeviceAddr(fmt.Sprintf("192.168.1.%d", i+10), 4370),
		).Device()
	}
	return devices
}

// ----------------------------- Punch fixtures -----------------------------

// Punches returns n records for a device, one per user, a minute apart
// starting at start.
func Punches(deviceID, branchID int64, start time.Time, n int) []attendance.Record {
	records := make([]attendance.Record, n)
	for i := range records {
		record := attendance.NewRecord(fmt.Sprint(1000+i), deviceID, branchID, start.Add(time.Duration(i)*time.Minute))
		record.VerifyMethod = attendance.VerifyMethodName(1)
		record.AttendanceType = attendance.AttendanceTypeName(i % 2)
		records[i] = record
	}
	return records
}
