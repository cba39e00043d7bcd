package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
	"github.com/example/attendance-sync/internal/testfixtures"
)

type statusFixture struct {
	harness *testfixtures.SQLiteHarness
	branch  attendance.Branch
	devices []attendance.Device
	router  http.Handler
}

func newStatusFixture(t *testing.T, token string) *statusFixture {
	t.Helper()
	harness := testfixtures.NewSQLiteHarness(t)
	branch, devices := harness.SeedDevices(t, 2)
	handler := NewStatusHandler(harness.Storage)
	return &statusFixture{
		harness: harness,
		branch:  branch,
		devices: devices,
		router:  NewRouter(RouterConfig{Status: handler, Token: token}),
	}
}

func (f *statusFixture) seedOutcomes(t *testing.T, deviceID int64, n int) {
	t.Helper()
	start := testfixtures.ReferenceTime()
	for i := 0; i < n; i++ {
		outcome := attendance.SyncOutcome{
			ID:           fmt.Sprintf("sync-%d-%d", deviceID, i),
			DeviceID:     deviceID,
			BranchID:     f.branch.ID,
			StartTime:    start.Add(time.Duration(i) * time.Minute),
			Status:       attendance.StatusInProgress,
			FetchedCount: 5,
		}
		outcome.Succeed(outcome.StartTime.Add(10*time.Second), i, 5-i)
		require.NoError(t, f.harness.SyncLogs.SaveOutcome(context.Background(), outcome))
	}
}

func (f *statusFixture) get(t *testing.T, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newStatusFixture(t, "secret")

	rec := f.get(t, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestHealthReportsUnavailableStore(t *testing.T) {
	t.Parallel()
	router := NewRouter(RouterConfig{Status: NewStatusHandler(&failingStore{err: errors.New("disk I/O error")})})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decode[healthResponse](t, rec).Status)
}

func TestListDevices(t *testing.T) {
	t.Parallel()
	f := newStatusFixture(t, "")
	f.seedOutcomes(t, f.devices[0].ID, 2)

	rec := f.get(t, "/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	devices := decode[[]deviceDTO](t, rec)
	require.Len(t, devices, 2)
	assert.Equal(t, f.devices[0].ID, devices[0].ID)
	assert.Equal(t, string(attendance.StatusSuccess), devices[0].LastSyncStatus)
	assert.Equal(t, 1, devices[0].LastSyncNew, "latest outcome wins")
	assert.Empty(t, devices[1].LastSyncStatus)

	t.Run("filters by branch", func(t *testing.T) {
		rec := f.get(t, fmt.Sprintf("/devices?branch_id=%d", f.branch.ID+100), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]deviceDTO](t, rec))
	})

	t.Run("rejects a malformed branch", func(t *testing.T) {
		rec := f.get(t, "/devices?branch_id=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errInvalidBranchID.Error(), decode[errorResponse](t, rec).Message)
	})
}

func TestListSyncLogs(t *testing.T) {
	t.Parallel()
	f := newStatusFixture(t, "")
	deviceID := f.devices[0].ID
	f.seedOutcomes(t, deviceID, 3)
	f.seedOutcomes(t, f.devices[1].ID, 1)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantIDs    []string
	}{
		{
			name:       "newest first with default limit",
			target:     fmt.Sprintf("/devices/%d/sync-logs", deviceID),
			wantStatus: http.StatusOK,
			wantIDs:    []string{fmt.Sprintf("sync-%d-2", deviceID), fmt.Sprintf("sync-%d-1", deviceID), fmt.Sprintf("sync-%d-0", deviceID)},
		},
		{
			name:       "limit",
			target:     fmt.Sprintf("/devices/%d/sync-logs?limit=1", deviceID),
			wantStatus: http.StatusOK,
			wantIDs:    []string{fmt.Sprintf("sync-%d-2", deviceID)},
		},
		{
			name:       "unknown device",
			target:     "/devices/9999/sync-logs",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed device",
			target:     "/devices/zero/sync-logs",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed limit",
			target:     fmt.Sprintf("/devices/%d/sync-logs?limit=-4", deviceID),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.get(t, tc.target, nil)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantStatus != http.StatusOK {
				return
			}
			logs := decode[[]syncLogDTO](t, rec)
			ids := make([]string, 0, len(logs))
			for _, l := range logs {
				ids = append(ids, l.ID)
				assert.Equal(t, deviceID, l.DeviceID)
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}
}

func TestGetDevice(t *testing.T) {
	t.Parallel()
	f := newStatusFixture(t, "")
	dev := f.devices[0]
	records := testfixtures.Punches(dev.ID, f.branch.ID, testfixtures.ReferenceTime(), 3)
	_, err := f.harness.Attendance.BulkInsert(context.Background(), records, 10)
	require.NoError(t, err)

	rec := f.get(t, fmt.Sprintf("/devices/%d", dev.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[deviceDetailDTO](t, rec)
	assert.Equal(t, dev.ID, got.ID)
	assert.Equal(t, dev.IP, got.IP)
	assert.Equal(t, 3, got.AttendanceCount)

	rec = f.get(t, fmt.Sprintf("/devices/%d", f.devices[1].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[deviceDetailDTO](t, rec).AttendanceCount)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/devices/9999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/devices/zero", nil).Code)
}

func TestStoreFailuresAreInternalErrors(t *testing.T) {
	t.Parallel()
	router := NewRouter(RouterConfig{Status: NewStatusHandler(&failingStore{err: errors.New("database is locked")})})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), decode[errorResponse](t, rec).Message,
		"internal error text is not exposed")
}

func TestParsePositive(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]bool{"1": true, "42": true, "0": false, "-1": false, "": false, "1e3": false} {
		_, ok := parsePositive(raw)
		assert.Equal(t, want, ok, raw)
	}
}

type failingStore struct {
	err error
}

func (s *failingStore) Ping(context.Context) error { return s.err }

func (s *failingStore) DeviceOverviews(context.Context, *int64) ([]persistence.DeviceOverview, error) {
	return nil, s.err
}

func (s *failingStore) GetDevice(context.Context, int64) (attendance.Device, error) {
	return attendance.Device{}, s.err
}

func (s *failingStore) CountAttendance(context.Context, int64) (int, error) {
	return 0, s.err
}

func (s *failingStore) ListSyncLogs(context.Context, persistence.SyncLogFilter) ([]attendance.SyncOutcome, error) {
	return nil, s.err
}
