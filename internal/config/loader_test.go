package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_ParseEnvironment(t *testing.T) {
	keys := []string{
		"ATTSYNC_CONFIG_FILE",
		"ATTSYNC_SQLITE_DSN",
		"ATTSYNC_HTTP_ADDR",
		"ATTSYNC_LOG_LEVEL",
		"ATTSYNC_SERVER_NAME",
		"ATTSYNC_STATUS_TOKEN",
	}
	reset := func(t *testing.T) {
		for _, key := range keys {
			t.Setenv(key, "")
		}
	}

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		reset(t)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, defaultConfigFile, cfg.ConfigFile)
		assert.Equal(t, defaultSQLiteDSN, cfg.SQLiteDSN)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.Empty(t, cfg.StatusToken)
		if host, err := os.Hostname(); err == nil {
			assert.Equal(t, host, cfg.ServerName)
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		reset(t)
		t.Setenv("ATTSYNC_CONFIG_FILE", "/etc/attsync.yaml")
		t.Setenv("ATTSYNC_SQLITE_DSN", "file:other.db")
		t.Setenv("ATTSYNC_HTTP_ADDR", "127.0.0.1:9090")
		t.Setenv("ATTSYNC_LOG_LEVEL", "debug")
		t.Setenv("ATTSYNC_SERVER_NAME", "branch-pc-1")
		t.Setenv("ATTSYNC_STATUS_TOKEN", " s3cret ")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "/etc/attsync.yaml", cfg.ConfigFile)
		assert.Equal(t, "file:other.db", cfg.SQLiteDSN)
		assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, "branch-pc-1", cfg.ServerName)
		assert.Equal(t, "s3cret", cfg.StatusToken)
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		reset(t)
		t.Setenv("ATTSYNC_HTTP_ADDR", "8080")
		t.Setenv("ATTSYNC_LOG_LEVEL", "loud")

		_, err := Load()
		require.Error(t, err)
		assert.Equal(t, "invalid environment values: ATTSYNC_HTTP_ADDR, ATTSYNC_LOG_LEVEL", err.Error())
	})
}

const sampleFile = `
branch:
  code: RUH-01
  name: Riyadh Main
  city: Riyadh
devices:
  - name: Gate A
    ip: 192.168.1.201
  - name: Gate B
    ip: 192.168.1.202
    port: 4371
    isActive: false
sync:
  syncIntervalMinutes: 5
  syncAllOnFirstTime: false
  peakHours:
    - name: morning
      startTime: "07:30"
      endTime: "09:00"
      runImmediatelyAfter: true
upstream:
  enabled: true
  baseUrl: https://central.example.com
  syncEndpoint: /api/attendance/sync
  apiKey: secret
driver:
  timezone: UTC
`

func TestParseFile(t *testing.T) {
	file, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	assert.Equal(t, "RUH-01", file.Branch.Code)
	require.Len(t, file.Devices, 2)
	assert.Equal(t, 4370, file.Devices[0].Port)
	assert.True(t, file.Devices[0].Active())
	assert.False(t, file.Devices[1].Active())

	s := file.Sync
	assert.True(t, s.AutoSync())
	assert.False(t, s.AllOnFirstTime())
	assert.Equal(t, 5*time.Minute, s.Interval())
	assert.Equal(t, 3, s.MaxRetryAttempts)
	assert.Equal(t, 365, s.SyncLastNDays)
	assert.Equal(t, 5, s.MaxConcurrentDevices)
	assert.Equal(t, 10000, s.BulkBatchSize)
	assert.Equal(t, 600*time.Second, s.CommandTimeout())
	require.Len(t, s.PeakHours, 1)
	assert.True(t, s.PeakHours[0].RunImmediatelyAfter)

	assert.Equal(t, 3, file.Upstream.RetryCount)
	assert.Equal(t, 120, file.Upstream.TimeoutSeconds)
	assert.Equal(t, "simulator", file.Driver.Kind)
	loc, err := file.Driver.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestParseFileValidation(t *testing.T) {
	t.Run("collects field errors", func(t *testing.T) {
		_, err := Parse([]byte(`
devices:
  - ip: ""
  - ip: 10.0.0.1
    port: 70000
  - ip: 10.0.0.1
    port: 70000
sync:
  bulkBatchSize: -1
upstream:
  enabled: true
driver:
  kind: vendor-sdk
`))
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		for _, field := range []string{
			"branch.code",
			"devices[0].ip",
			"devices[1].port",
			"devices[2]",
			"sync.bulkBatchSize",
			"upstream.baseUrl",
			"driver.kind",
		} {
			assert.Contains(t, vErr.FieldErrors, field)
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		_, err := Parse([]byte("branch:\n  code: X\nsyncc: {}\n"))
		require.Error(t, err)
	})

	t.Run("empty document reports missing branch", func(t *testing.T) {
		_, err := Parse(nil)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "branch.code")
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance-sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Riyadh Main", file.Branch.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
