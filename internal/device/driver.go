// Package device defines the capability contract the sync engine uses to talk
// to attendance terminals. Vendor protocol handles never leave a Driver
// implementation; callers only see attendance.Record values.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/attendance-sync/internal/attendance"
)

var (
	// ErrConnectionFailed is returned when a terminal is unreachable or rejects the session.
	ErrConnectionFailed = errors.New("device: connection failed")
	// ErrNotConnected is returned by operations that require an open session.
	ErrNotConnected = errors.New("device: not connected")
	// ErrReadFailed is returned when both the bulk and the fallback log reads fail.
	ErrReadFailed = errors.New("device: read failed")
)

// Driver is one session with one terminal. Implementations are not safe for
// concurrent use; the engine creates a driver per workflow through a Factory.
type Driver interface {
	Connect(ctx context.Context, ip string, port int) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	// FetchRecords reads every punch stored on the terminal. Implementations
	// suspend check-in capture for the duration of the read and resume it on
	// every exit path.
	FetchRecords(ctx context.Context, deviceID, branchID int64) ([]attendance.Record, error)
	StatusSnapshot(ctx context.Context, deviceID, branchID int64) (attendance.DeviceStatus, error)
}

// Factory returns a fresh driver for a device.
type Factory func(dev attendance.Device) Driver

// RawPunch is a log entry exactly as a terminal reports it.
type RawPunch struct {
	UserID     string
	VerifyMode int
	InOutMode  int
	Year       int
	Month      int
	Day        int
	Hour       int
	Minute     int
	Second     int
	WorkCode   int
}

// MalformedRecordError reports a punch whose date or time fields are out of range.
type MalformedRecordError struct {
	Index int
	Punch RawPunch
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	p := e.Punch
	return fmt.Sprintf("device: record %d has invalid timestamp %04d-%02d-%02d %02d:%02d:%02d",
		e.Index, p.Year, p.Month, p.Day, p.Hour, p.Minute, p.Second)
}

// Decode validates a raw punch and converts it to a record in loc.
func Decode(index int, raw RawPunch, deviceID, branchID int64, loc *time.Location) (attendance.Record, error) {
	if raw.Year < 2000 || raw.Month < 1 || raw.Month > 12 || raw.Day < 1 || raw.Day > 31 ||
		raw.Hour < 0 || raw.Hour > 23 || raw.Minute < 0 || raw.Minute > 59 || raw.Second < 0 || raw.Second > 59 {
		return attendance.Record{}, &MalformedRecordError{Index: index, Punch: raw}
	}
	if loc == nil {
		loc = time.Local
	}
	at := time.Date(raw.Year, time.Month(raw.Month), raw.Day, raw.Hour, raw.Minute, raw.Second, 0, loc)
	// time.Date normalises Feb 31 into March; treat that as malformed too.
	if at.Day() != raw.Day {
		return attendance.Record{}, &MalformedRecordError{Index: index, Punch: raw}
	}

	record := attendance.NewRecord(raw.UserID, deviceID, branchID, at)
	record.VerifyMethod = attendance.VerifyMethodName(raw.VerifyMode)
	record.AttendanceType = attendance.AttendanceTypeName(raw.InOutMode)
	record.WorkCode = raw.WorkCode
	return record, nil
}

// DecodeAll converts raw punches, skipping malformed ones. The skipped errors
// are returned so callers can log them individually.
func DecodeAll(raws []RawPunch, deviceID, branchID int64, loc *time.Location) ([]attendance.Record, []error) {
	records := make([]attendance.Record, 0, len(raws))
	var skipped []error
	for i, raw := range raws {
		record, err := Decode(i+1, raw, deviceID, branchID, loc)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}
