package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  error
	}{
		{name: "missing credentials", wantStatus: http.StatusUnauthorized, wantError: errMissingToken},
		{name: "wrong scheme", header: "Basic c2VjcmV0", wantStatus: http.StatusUnauthorized, wantError: errMissingToken},
		{name: "wrong token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantError: errInvalidToken},
		{name: "valid token", header: "Bearer secret", wantStatus: http.StatusNoContent},
	}

	handler := RequireToken("secret", slog.New(slog.NewTextHandler(io.Discard, nil)))(okHandler())
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/devices", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantError != nil {
				assert.Equal(t, tc.wantError.Error(), decode[errorResponse](t, rec).Message)
			}
		})
	}
}

func TestRequireTokenDisabled(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	RequireToken("", nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouterProtectsAllButHealth(t *testing.T) {
	t.Parallel()
	f := newStatusFixture(t, "secret")

	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/devices", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/devices/1", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/devices/1/sync-logs", nil).Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/devices", http.Header{"Authorization": {"Bearer secret"}}).Code)
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var sawLogger bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	})
	handler := middleware.RequestID(RequestLogger(logger)(inner))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices?branch_id=1", nil))

	assert.True(t, sawLogger)
	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "path=/devices")
	assert.Contains(t, out, "request_id=")
}
