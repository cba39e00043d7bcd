package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-sync/internal/attendance"
)

var syncTime = time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)

func sampleRecords() []attendance.Record {
	at := time.Date(2025, time.March, 3, 8, 1, 2, 0, time.UTC)
	first := attendance.NewRecord("17", 4, 2, at)
	first.VerifyMethod = "Face"
	first.AttendanceType = "CheckIn"
	second := attendance.NewRecord("18", 4, 2, at.Add(time.Minute))
	second.WorkCode = 3
	return []attendance.Record{first, second}
}

type recordedWaits struct {
	waits []time.Duration
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestClientSend(t *testing.T) {
	t.Parallel()

	var (
		gotBody   []byte
		gotHeader http.Header
		gotPath   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := New(Settings{
		BaseURL:      server.URL + "/central/",
		SyncEndpoint: "api/attendance/sync",
		APIKey:       "key-123",
		SigningKey:   "shared-secret",
	}, WithClock(func() time.Time { return syncTime }))
	require.NoError(t, err)

	require.NoError(t, client.Send(context.Background(), sampleRecords(), 2, 4))

	assert.Equal(t, "/central/api/attendance/sync", gotPath)
	assert.Equal(t, "key-123", gotHeader.Get(APIKeyHeader))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))

	want, err := Sign([]byte("shared-secret"), gotBody)
	require.NoError(t, err)
	assert.Equal(t, want, gotHeader.Get(SignatureHeader))
	assert.Len(t, want, 64)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.EqualValues(t, 2, payload["branchId"])
	assert.EqualValues(t, 4, payload["deviceId"])
	assert.Equal(t, "2025-03-03T09:30:00Z", payload["syncTime"])
	logs := payload["attendanceLogs"].([]any)
	require.Len(t, logs, 2)
	first := logs[0].(map[string]any)
	assert.Equal(t, "17", first["biometricUserId"])
	assert.Equal(t, "2025-03-03T08:01:02Z", first["attendanceTime"])
	assert.Equal(t, "Face", first["verifyMethod"])
	assert.EqualValues(t, 3, logs[1].(map[string]any)["workCode"])
}

func TestClientRetries(t *testing.T) {
	t.Parallel()

	t.Run("recovers after transient failures", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(server.Close)

		waits := &recordedWaits{}
		client, err := New(Settings{BaseURL: server.URL, RetryCount: 3}, WithWait(waits.wait))
		require.NoError(t, err)

		require.NoError(t, client.Send(context.Background(), sampleRecords(), 1, 1))
		assert.EqualValues(t, 3, calls.Load())
		assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, waits.waits)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "invalid branch", http.StatusBadRequest)
		}))
		t.Cleanup(server.Close)

		waits := &recordedWaits{}
		client, err := New(Settings{BaseURL: server.URL, RetryCount: 2}, WithWait(waits.wait))
		require.NoError(t, err)

		err = client.Send(context.Background(), sampleRecords(), 1, 1)
		require.ErrorIs(t, err, ErrRejected)
		assert.Contains(t, err.Error(), "status 400: invalid branch")
		assert.EqualValues(t, 2, calls.Load())
		assert.Equal(t, []time.Duration{5 * time.Second}, waits.waits)
	})

	t.Run("cancellation stops retrying", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)

		ctx, cancel := context.WithCancel(context.Background())
		client, err := New(Settings{BaseURL: server.URL, RetryCount: 5}, WithWait(func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		}))
		require.NoError(t, err)

		err = client.Send(ctx, sampleRecords(), 1, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("default wait ends when the context does", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		client, err := New(Settings{BaseURL: server.URL, RetryCount: 3})
		require.NoError(t, err)

		started := time.Now()
		err = client.Send(ctx, sampleRecords(), 1, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(started), 2*time.Second)
		assert.LessOrEqual(t, calls.Load(), int32(1), "no retry once the wait is cut short")
	})
}

func TestClientSkipsEmptyBatches(t *testing.T) {
	t.Parallel()
	client, err := New(Settings{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NoError(t, client.Send(context.Background(), nil, 1, 1))
}

func TestNewValidatesSettings(t *testing.T) {
	t.Parallel()

	_, err := New(Settings{})
	assert.ErrorContains(t, err, "base URL is required")

	_, err = New(Settings{BaseURL: "central.example.com"})
	assert.ErrorContains(t, err, "must be absolute")

	_, err = New(Settings{BaseURL: "https://central.example.com", SigningKey: string(make([]byte, 65))})
	assert.ErrorContains(t, err, "signing key longer")
}

func TestSignWithoutKey(t *testing.T) {
	t.Parallel()
	sig, err := Sign(nil, []byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, sig)
}
