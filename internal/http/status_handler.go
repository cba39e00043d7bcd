package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
)

const (
	defaultSyncLogLimit = 20
	maxSyncLogLimit     = 500
)

type statusStore interface {
	Ping(ctx context.Context) error
	DeviceOverviews(ctx context.Context, branchID *int64) ([]persistence.DeviceOverview, error)
	GetDevice(ctx context.Context, id int64) (attendance.Device, error)
	CountAttendance(ctx context.Context, deviceID int64) (int, error)
	ListSyncLogs(ctx context.Context, filter persistence.SyncLogFilter) ([]attendance.SyncOutcome, error)
}

// StatusHandler serves read-only views of the device registry and sync history.
type StatusHandler struct {
	store     statusStore
	logger    *slog.Logger
	responder responder
}

func NewStatusHandler(store statusStore) *StatusHandler {
	return NewStatusHandlerWithLogger(store, nil)
}

func NewStatusHandlerWithLogger(store statusStore, logger *slog.Logger) *StatusHandler {
	base := defaultLogger(logger)
	return &StatusHandler{
		store:     store,
		logger:    base,
		responder: newResponder(base),
	}
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.Ping(ctx); err != nil {
		handlerLogger(ctx, h.logger, "status", "health").WarnContext(ctx, "database ping failed", "error", err)
		h.responder.writeJSON(ctx, w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *StatusHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var branchID *int64
	if raw := r.URL.Query().Get("branch_id"); raw != "" {
		id, ok := parsePositive(raw)
		if !ok {
			h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidBranchID)
			return
		}
		branchID = &id
	}

	overviews, err := h.store.DeviceOverviews(ctx, branchID)
	if err != nil {
		h.responder.handleStoreError(ctx, w, err)
		return
	}

	response := make([]deviceDTO, 0, len(overviews))
	for _, o := range overviews {
		response = append(response, toDeviceDTO(o))
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, response)
}

func (h *StatusHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID, ok := parsePositive(chi.URLParam(r, "deviceID"))
	if !ok {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidDeviceID)
		return
	}

	device, err := h.store.GetDevice(ctx, deviceID)
	if err != nil {
		h.responder.handleStoreError(ctx, w, err)
		return
	}
	count, err := h.store.CountAttendance(ctx, deviceID)
	if err != nil {
		h.responder.handleStoreError(ctx, w, err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, deviceDetailDTO{
		ID:               device.ID,
		Name:             device.Name,
		IP:               device.IP,
		Port:             device.Port,
		BranchID:         device.BranchID,
		Active:           device.IsActive,
		ConnectionStatus: device.ConnectionStatus,
		LastConnection:   device.LastConnectionTime,
		AttendanceCount:  count,
	})
}

func (h *StatusHandler) ListSyncLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID, ok := parsePositive(chi.URLParam(r, "deviceID"))
	if !ok {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidDeviceID)
		return
	}

	limit := defaultSyncLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, ok := parsePositive(raw)
		if !ok {
			h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = int(min(n, maxSyncLogLimit))
	}

	if _, err := h.store.GetDevice(ctx, deviceID); err != nil {
		h.responder.handleStoreError(ctx, w, err)
		return
	}

	logs, err := h.store.ListSyncLogs(ctx, persistence.SyncLogFilter{DeviceID: &deviceID, Limit: limit})
	if err != nil {
		h.responder.handleStoreError(ctx, w, err)
		return
	}

	response := make([]syncLogDTO, 0, len(logs))
	for _, l := range logs {
		response = append(response, toSyncLogDTO(l))
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, response)
}

func parsePositive(raw string) (int64, bool) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

type healthResponse struct {
	Status string `json:"status"`
}

type deviceDTO struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	IP               string     `json:"ip"`
	Port             int        `json:"port"`
	BranchID         int64      `json:"branch_id"`
	Active           bool       `json:"active"`
	ConnectionStatus string     `json:"connection_status,omitempty"`
	LastConnection   *time.Time `json:"last_connection,omitempty"`
	LastSyncStatus   string     `json:"last_sync_status,omitempty"`
	LastSyncEnd      *time.Time `json:"last_sync_end,omitempty"`
	LastSyncNew      int        `json:"last_sync_new"`
	SerialNumber     string     `json:"serial_number,omitempty"`
	LogCount         int        `json:"device_log_count"`
	AttendanceCount  int        `json:"stored_attendance_count"`
}

func toDeviceDTO(o persistence.DeviceOverview) deviceDTO {
	return deviceDTO{
		ID:               o.DeviceID,
		Name:             o.Name,
		IP:               o.IP,
		Port:             o.Port,
		BranchID:         o.BranchID,
		Active:           o.IsActive,
		ConnectionStatus: o.ConnectionStatus,
		LastConnection:   o.LastConnection,
		LastSyncStatus:   o.LastSyncStatus,
		LastSyncEnd:      o.LastSyncEnd,
		LastSyncNew:      o.LastSyncNew,
		SerialNumber:     o.SerialNumber,
		LogCount:         o.LogCount,
		AttendanceCount:  o.AttendanceCount,
	}
}

type deviceDetailDTO struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	IP               string     `json:"ip"`
	Port             int        `json:"port"`
	BranchID         int64      `json:"branch_id"`
	Active           bool       `json:"active"`
	ConnectionStatus string     `json:"connection_status,omitempty"`
	LastConnection   *time.Time `json:"last_connection,omitempty"`
	AttendanceCount  int        `json:"stored_attendance_count"`
}

type syncLogDTO struct {
	ID             string     `json:"id"`
	DeviceID       int64      `json:"device_id"`
	BranchID       int64      `json:"branch_id"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	FetchedCount   int        `json:"fetched"`
	NewCount       int        `json:"new"`
	DuplicateCount int        `json:"duplicates"`
	ErrorMessage   string     `json:"error,omitempty"`
	ServerName     string     `json:"server,omitempty"`
}

func toSyncLogDTO(o attendance.SyncOutcome) syncLogDTO {
	return syncLogDTO{
		ID:             o.ID,
		DeviceID:       o.DeviceID,
		BranchID:       o.BranchID,
		Status:         string(o.Status),
		StartTime:      o.StartTime,
		EndTime:        o.EndTime,
		FetchedCount:   o.FetchedCount,
		NewCount:       o.NewCount,
		DuplicateCount: o.DuplicateCount,
		ErrorMessage:   o.ErrorMessage,
		ServerName:     o.ServerName,
	}
}
