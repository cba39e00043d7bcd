package persistence

import "time"

// DeviceFilter narrows device registry queries.
type DeviceFilter struct {
	BranchID   *int64
	ActiveOnly bool
}

// SyncLogFilter narrows sync log queries. Results are newest first.
type SyncLogFilter struct {
	DeviceID *int64
	Status   string
	Since    *time.Time
	Limit    int
}

// DeviceOverview joins a device with its latest sync log and status snapshot.
type DeviceOverview struct {
	DeviceID         int64
	Name             string
	IP               string
	Port             int
	BranchID         int64
	IsActive         bool
	ConnectionStatus string
	LastConnection   *time.Time
	LastSyncStatus   string
	LastSyncEnd      *time.Time
	LastSyncNew      int
	SerialNumber     string
	LogCount         int
	AttendanceCount  int
}
