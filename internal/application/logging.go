package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/attendance-sync/internal/device"
	"github.com/example/attendance-sync/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(base)
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logger.With(append(pairs, attrs...)...)
}

// ErrorKind maps engine errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, device.ErrConnectionFailed):
		return "connection"
	case errors.Is(err, device.ErrReadFailed):
		return "read"
	case errors.Is(err, device.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNoDevices):
		return "no_devices"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}

	var malformed *device.MalformedRecordError
	if errors.As(err, &malformed) {
		return "malformed_record"
	}

	return "unexpected"
}

// isCancellation reports whether err stems from the caller giving up.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
