// Package simulator provides an in-process terminal fleet implementing the
// device.Driver contract. It backs local runs and tests; the vendor SDK driver
// lives outside this repository.
package simulator

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/device"
)

// Terminal is the simulated hardware: its punch log and capture state.
type Terminal struct {
	mu sync.Mutex

	punches        []device.RawPunch
	captureEnabled bool
	pauseCount     int

	SerialNumber    string
	FirmwareVersion string
	UserCount       int
	FaceCount       int

	// Failure switches used by tests and demos.
	RefuseConnect    bool
	FailBulkRead     bool
	FailFallbackRead bool
	ReadLatency      time.Duration
}

// NewTerminal returns an empty terminal with capture enabled.
func NewTerminal(serial string) *Terminal {
	return &Terminal{SerialNumber: serial, FirmwareVersion: "Ver 6.60", captureEnabled: true}
}

// Append stores punches as if users had checked in.
func (t *Terminal) Append(punches ...device.RawPunch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.punches = append(t.punches, punches...)
}

// LogCount is the number of stored punches.
func (t *Terminal) LogCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.punches)
}

// CaptureEnabled reports whether the terminal currently accepts check-ins.
func (t *Terminal) CaptureEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.captureEnabled
}

// Pauses is how many times capture was suspended for a read.
func (t *Terminal) Pauses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauseCount
}

func (t *Terminal) setCapture(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !enabled {
		t.pauseCount++
	}
	t.captureEnabled = enabled
}

func (t *Terminal) snapshot() []device.RawPunch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]device.RawPunch, len(t.punches))
	copy(out, t.punches)
	return out
}

// Fleet resolves terminals by address.
type Fleet struct {
	mu        sync.Mutex
	terminals map[string]*Terminal

	// Provision, when set, creates terminals for unknown addresses.
	Provision func(ip string, port int) *Terminal
	Location  *time.Location
	Logger    *slog.Logger
}

// NewFleet returns an empty fleet.
func NewFleet(logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fleet{terminals: make(map[string]*Terminal), Location: time.Local, Logger: logger}
}

// Add registers a terminal at ip:port.
func (f *Fleet) Add(ip string, port int, terminal *Terminal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminals[address(ip, port)] = terminal
}

// Terminal returns the terminal at ip:port, provisioning it if configured.
func (f *Fleet) Terminal(ip string, port int) (*Terminal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := address(ip, port)
	if terminal, ok := f.terminals[key]; ok {
		return terminal, true
	}
	if f.Provision == nil {
		return nil, false
	}
	terminal := f.Provision(ip, port)
	if terminal == nil {
		return nil, false
	}
	f.terminals[key] = terminal
	return terminal, true
}

// Factory returns a device.Factory creating drivers bound to this fleet.
func (f *Fleet) Factory() device.Factory {
	return func(attendance.Device) device.Driver {
		return &Driver{fleet: f, logger: f.Logger}
	}
}

// Driver is a session with one simulated terminal.
type Driver struct {
	fleet    *Fleet
	logger   *slog.Logger
	terminal *Terminal
	addr     string
}

// Connect opens a session with the terminal at ip:port.
func (d *Driver) Connect(ctx context.Context, ip string, port int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	terminal, ok := d.fleet.Terminal(ip, port)
	if !ok || terminal.RefuseConnect {
		return fmt.Errorf("%w: %s", device.ErrConnectionFailed, address(ip, port))
	}
	d.terminal = terminal
	d.addr = address(ip, port)
	d.logger.Debug("terminal connected", "addr", d.addr)
	return nil
}

// Disconnect closes the session. It is safe to call when not connected.
func (d *Driver) Disconnect(context.Context) error {
	if d.terminal == nil {
		return nil
	}
	d.terminal = nil
	d.logger.Debug("terminal disconnected", "addr", d.addr)
	return nil
}

// IsConnected reports whether a session is open.
func (d *Driver) IsConnected() bool {
	return d.terminal != nil
}

// FetchRecords reads the full punch log with capture suspended.
func (d *Driver) FetchRecords(ctx context.Context, deviceID, branchID int64) ([]attendance.Record, error) {
	terminal := d.terminal
	if terminal == nil {
		return nil, device.ErrNotConnected
	}
	if terminal.LogCount() == 0 {
		return nil, nil
	}

	terminal.setCapture(false)
	defer terminal.setCapture(true)

	start := time.Now()
	raws, err := d.read(ctx, terminal, terminal.FailBulkRead)
	if err != nil {
		d.logger.Warn("bulk log read failed, using fallback", "addr", d.addr, "error", err)
		raws, err = d.read(ctx, terminal, terminal.FailFallbackRead)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", device.ErrReadFailed, d.addr, err)
		}
	}

	records, skipped := device.DecodeAll(raws, deviceID, branchID, d.fleet.Location)
	for _, skipErr := range skipped {
		d.logger.Warn("skipping malformed record", "addr", d.addr, "error", skipErr)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })

	d.logger.Info("terminal log read",
		"addr", d.addr,
		"records", len(records),
		"skipped", len(skipped),
		"duration", time.Since(start),
	)
	return records, nil
}

func (d *Driver) read(ctx context.Context, terminal *Terminal, fail bool) ([]device.RawPunch, error) {
	if terminal.ReadLatency > 0 {
		timer := time.NewTimer(terminal.ReadLatency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if fail {
		return nil, fmt.Errorf("terminal returned no data")
	}
	return terminal.snapshot(), nil
}

// StatusSnapshot reports terminal identity and counters.
func (d *Driver) StatusSnapshot(ctx context.Context, deviceID, branchID int64) (attendance.DeviceStatus, error) {
	now := time.Now()
	status := attendance.DeviceStatus{
		DeviceID:   deviceID,
		BranchID:   branchID,
		StatusTime: now,
	}
	terminal := d.terminal
	if terminal == nil {
		status.StatusMessage = "not connected"
		return status, nil
	}
	if err := ctx.Err(); err != nil {
		return status, err
	}
	status.IsOnline = true
	status.SerialNumber = terminal.SerialNumber
	status.Model = "Simulator"
	status.FirmwareVersion = terminal.FirmwareVersion
	status.UserCount = terminal.UserCount
	status.LogCount = terminal.LogCount()
	status.FaceCount = terminal.FaceCount
	status.DeviceTime = &now
	status.StatusMessage = "connected"
	return status, nil
}

// Generate fills a terminal with deterministic punches: each of users checks
// in and out once per day for days days ending at until.
func Generate(seed int64, users, days int, until time.Time) []device.RawPunch {
	rng := rand.New(rand.NewSource(seed))
	punches := make([]device.RawPunch, 0, users*days*2)
	for day := days - 1; day >= 0; day-- {
		date := until.AddDate(0, 0, -day)
		for user := 1; user <= users; user++ {
			in := time.Date(date.Year(), date.Month(), date.Day(), 7+rng.Intn(2), rng.Intn(60), rng.Intn(60), 0, until.Location())
			out := in.Add(8*time.Hour + time.Duration(rng.Intn(90))*time.Minute)
			for i, at := range []time.Time{in, out} {
				if at.After(until) {
					continue
				}
				punches = append(punches, device.RawPunch{
					UserID:     fmt.Sprintf("%d", 1000+user),
					VerifyMode: 1 + 4*rng.Intn(2),
					InOutMode:  i,
					Year:       at.Year(),
					Month:      int(at.Month()),
					Day:        at.Day(),
					Hour:       at.Hour(),
					Minute:     at.Minute(),
					Second:     at.Second(),
				})
			}
		}
	}
	return punches
}

// SeededProvisioner returns a Fleet.Provision func generating history for
// every new address, seeded by the address so reruns produce the same log.
func SeededProvisioner(users, days int, now func() time.Time) func(ip string, port int) *Terminal {
	if now == nil {
		now = time.Now
	}
	return func(ip string, port int) *Terminal {
		h := fnv.New64a()
		_, _ = h.Write([]byte(address(ip, port)))
		seed := int64(h.Sum64() >> 1)

		terminal := NewTerminal(fmt.Sprintf("SIM%08X", uint32(seed)))
		terminal.UserCount = users
		terminal.Append(Generate(seed, users, days, now())...)
		return terminal
	}
}

func address(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}
