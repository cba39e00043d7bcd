package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Status *StatusHandler
	// Token protects every route except /healthz. Empty disables the check.
	Token      string
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	if cfg.Status == nil {
		return r
	}

	r.Get("/healthz", cfg.Status.Health)
	r.Group(func(r chi.Router) {
		r.Use(RequireToken(cfg.Token, cfg.Logger))
		r.Get("/devices", cfg.Status.ListDevices)
		r.Get("/devices/{deviceID}", cfg.Status.GetDevice)
		r.Get("/devices/{deviceID}/sync-logs", cfg.Status.ListSyncLogs)
	})

	return r
}
