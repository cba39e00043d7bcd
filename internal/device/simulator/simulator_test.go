package simulator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/device"
)

func newTestFleet() *Fleet {
	fleet := NewFleet(slog.New(slog.NewTextHandler(io.Discard, nil)))
	fleet.Location = time.UTC
	return fleet
}

func TestDriverFetchRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("reads sorted records and resumes capture", func(t *testing.T) {
		fleet := newTestFleet()
		terminal := NewTerminal("SN1")
		terminal.Append(
			device.RawPunch{UserID: "2", Year: 2025, Month: 3, Day: 1, Hour: 9},
			device.RawPunch{UserID: "1", Year: 2025, Month: 3, Day: 1, Hour: 8},
			device.RawPunch{UserID: "3", Year: 1970, Month: 3, Day: 1, Hour: 8},
		)
		fleet.Add("10.0.0.1", 4370, terminal)

		driver := fleet.Factory()(attendance.Device{})
		require.NoError(t, driver.Connect(ctx, "10.0.0.1", 4370))
		assert.True(t, driver.IsConnected())

		records, err := driver.FetchRecords(ctx, 5, 1)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "1", records[0].BiometricUserID)
		assert.Equal(t, "2", records[1].BiometricUserID)
		assert.True(t, terminal.CaptureEnabled())
		assert.Equal(t, 1, terminal.Pauses())

		require.NoError(t, driver.Disconnect(ctx))
		assert.False(t, driver.IsConnected())
	})

	t.Run("falls back when the bulk read fails", func(t *testing.T) {
		fleet := newTestFleet()
		terminal := NewTerminal("SN2")
		terminal.FailBulkRead = true
		terminal.Append(device.RawPunch{UserID: "1", Year: 2025, Month: 3, Day: 1, Hour: 8})
		fleet.Add("10.0.0.2", 4370, terminal)

		driver := fleet.Factory()(attendance.Device{})
		require.NoError(t, driver.Connect(ctx, "10.0.0.2", 4370))
		records, err := driver.FetchRecords(ctx, 1, 1)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("resumes capture when both reads fail", func(t *testing.T) {
		fleet := newTestFleet()
		terminal := NewTerminal("SN3")
		terminal.FailBulkRead = true
		terminal.FailFallbackRead = true
		terminal.Append(device.RawPunch{UserID: "1", Year: 2025, Month: 3, Day: 1, Hour: 8})
		fleet.Add("10.0.0.3", 4370, terminal)

		driver := fleet.Factory()(attendance.Device{})
		require.NoError(t, driver.Connect(ctx, "10.0.0.3", 4370))
		_, err := driver.FetchRecords(ctx, 1, 1)
		assert.True(t, errors.Is(err, device.ErrReadFailed))
		assert.True(t, terminal.CaptureEnabled())
	})

	t.Run("honours cancellation during a slow read", func(t *testing.T) {
		fleet := newTestFleet()
		terminal := NewTerminal("SN4")
		terminal.ReadLatency = time.Hour
		terminal.Append(device.RawPunch{UserID: "1", Year: 2025, Month: 3, Day: 1, Hour: 8})
		fleet.Add("10.0.0.4", 4370, terminal)

		driver := fleet.Factory()(attendance.Device{})
		require.NoError(t, driver.Connect(ctx, "10.0.0.4", 4370))

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := driver.FetchRecords(cctx, 1, 1)
		assert.Error(t, err)
		assert.True(t, terminal.CaptureEnabled())
	})

	t.Run("requires a session", func(t *testing.T) {
		driver := newTestFleet().Factory()(attendance.Device{})
		_, err := driver.FetchRecords(ctx, 1, 1)
		assert.ErrorIs(t, err, device.ErrNotConnected)
	})
}

func TestConnectFailures(t *testing.T) {
	ctx := context.Background()
	fleet := newTestFleet()

	driver := fleet.Factory()(attendance.Device{})
	assert.ErrorIs(t, driver.Connect(ctx, "10.9.9.9", 4370), device.ErrConnectionFailed)

	refusing := NewTerminal("SN5")
	refusing.RefuseConnect = true
	fleet.Add("10.0.0.5", 4370, refusing)
	assert.ErrorIs(t, driver.Connect(ctx, "10.0.0.5", 4370), device.ErrConnectionFailed)
}

func TestSeededProvisionerIsDeterministic(t *testing.T) {
	until := time.Date(2025, time.April, 10, 18, 0, 0, 0, time.UTC)
	provision := SeededProvisioner(3, 2, func() time.Time { return until })

	first := provision("192.168.1.201", 4370)
	second := provision("192.168.1.201", 4370)
	assert.Equal(t, first.snapshot(), second.snapshot())
	assert.Equal(t, first.SerialNumber, second.SerialNumber)
	assert.NotZero(t, first.LogCount())
}

func TestStatusSnapshot(t *testing.T) {
	ctx := context.Background()
	fleet := newTestFleet()
	terminal := NewTerminal("SN6")
	terminal.UserCount = 12
	fleet.Add("10.0.0.6", 4370, terminal)

	driver := fleet.Factory()(attendance.Device{})
	offline, err := driver.StatusSnapshot(ctx, 6, 1)
	require.NoError(t, err)
	assert.False(t, offline.IsOnline)

	require.NoError(t, driver.Connect(ctx, "10.0.0.6", 4370))
	online, err := driver.StatusSnapshot(ctx, 6, 1)
	require.NoError(t, err)
	assert.True(t, online.IsOnline)
	assert.Equal(t, "SN6", online.SerialNumber)
	assert.Equal(t, 12, online.UserCount)
}
