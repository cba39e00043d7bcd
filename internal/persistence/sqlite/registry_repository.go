package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
)

// UpsertBranch creates the branch or refreshes the one with the same code.
func (s *Storage) UpsertBranch(ctx context.Context, branch attendance.Branch) (attendance.Branch, error) {
	const query = `
		INSERT INTO branches (code, name, city, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			city = excluded.city,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`

	now := formatTime(s.now())
	err := s.retry.WithRetry(ctx, func() error {
		_, err := s.helper.Exec(ctx, query,
			branch.Code, branch.Name, nullString(branch.City), boolToInt(branch.IsActive), now, now)
		return err
	})
	if err != nil {
		return attendance.Branch{}, fmt.Errorf("sqlite: upsert branch %s: %w", branch.Code, err)
	}
	return s.GetBranchByCode(ctx, branch.Code)
}

// GetBranchByCode returns persistence.ErrNotFound for unknown codes.
func (s *Storage) GetBranchByCode(ctx context.Context, code string) (attendance.Branch, error) {
	const query = `SELECT id, code, name, COALESCE(city, ''), is_active FROM branches WHERE code = ?`

	var branch attendance.Branch
	err := s.helper.QueryRow(ctx, query, code).Scan(
		&branch.ID, &branch.Code, &branch.Name, &branch.City, &branch.IsActive)
	if err != nil {
		return attendance.Branch{}, s.mapper.MapError(err)
	}
	return branch, nil
}

// UpsertDevice registers the device, refreshing the one bound to the same
// IP and port. Connection state is left untouched on update.
func (s *Storage) UpsertDevice(ctx context.Context, device attendance.Device) (attendance.Device, error) {
	const query = `
		INSERT INTO devices (name, ip, port, branch_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip, port) DO UPDATE SET
			name = excluded.name,
			branch_id = excluded.branch_id,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`

	now := formatTime(s.now())
	err := s.retry.WithRetry(ctx, func() error {
		_, err := s.helper.Exec(ctx, query,
			device.Name, device.IP, device.Port, device.BranchID, boolToInt(device.IsActive), now, now)
		return err
	})
	if err != nil {
		return attendance.Device{}, fmt.Errorf("sqlite: upsert device %s:%d: %w", device.IP, device.Port, err)
	}

	row := s.helper.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE ip = ? AND port = ?`, device.IP, device.Port)
	stored, err := scanDevice(row)
	if err != nil {
		return attendance.Device{}, s.mapper.MapError(err)
	}
	return stored, nil
}

const deviceColumns = `id, name, ip, port, branch_id, is_active, connection_status, last_connection_time`

// GetDevice returns persistence.ErrNotFound for unknown IDs.
func (s *Storage) GetDevice(ctx context.Context, id int64) (attendance.Device, error) {
	device, err := scanDevice(s.helper.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err != nil {
		return attendance.Device{}, s.mapper.MapError(err)
	}
	return device, nil
}

// ListDevices returns devices matching filter ordered by ID.
func (s *Storage) ListDevices(ctx context.Context, filter persistence.DeviceFilter) ([]attendance.Device, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.BranchID != nil {
		conditions = append(conditions, "branch_id = ?")
		args = append(args, *filter.BranchID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = 1")
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var devices []attendance.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// UpdateDeviceConnectionStatus records the connection label. The last
// connection time only moves when the device was reached.
func (s *Storage) UpdateDeviceConnectionStatus(ctx context.Context, deviceID int64, online bool, label string) error {
	now := formatTime(s.now())
	query := `UPDATE devices SET connection_status = ?, updated_at = ? WHERE id = ?`
	args := []any{label, now, deviceID}
	if online {
		query = `UPDATE devices SET connection_status = ?, last_connection_time = ?, updated_at = ? WHERE id = ?`
		args = []any{label, now, now, deviceID}
	}

	var affected int64
	err := s.retry.WithRetry(ctx, func() error {
		result, err := s.helper.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// SaveDeviceStatus appends a status snapshot.
func (s *Storage) SaveDeviceStatus(ctx context.Context, status attendance.DeviceStatus) error {
	const query = `
		INSERT INTO device_statuses (
			device_id, branch_id, is_online, serial_number, model, firmware_version,
			user_count, log_count, face_count, device_time, status_message, status_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	statusTime := status.StatusTime
	if statusTime.IsZero() {
		statusTime = s.now()
	}
	return s.retry.WithRetry(ctx, func() error {
		_, err := s.helper.Exec(ctx, query,
			status.DeviceID,
			status.BranchID,
			boolToInt(status.IsOnline),
			nullString(status.SerialNumber),
			nullString(status.Model),
			nullString(status.FirmwareVersion),
			status.UserCount,
			status.LogCount,
			status.FaceCount,
			formatNullableTime(status.DeviceTime),
			nullString(status.StatusMessage),
			formatTime(statusTime),
		)
		return err
	})
}

// DeviceOverviews joins every device with its latest sync log, latest status
// snapshot and stored punch count.
func (s *Storage) DeviceOverviews(ctx context.Context, branchID *int64) ([]persistence.DeviceOverview, error) {
	query := `
		SELECT d.id, d.name, d.ip, d.port, d.branch_id, d.is_active,
			d.connection_status, d.last_connection_time,
			COALESCE(sl.status, ''), sl.end_time, COALESCE(sl.new_count, 0),
			COALESCE(ds.serial_number, ''), COALESCE(ds.log_count, 0),
			(SELECT COUNT(*) FROM attendance_logs a WHERE a.device_id = d.id)
		FROM devices d
		LEFT JOIN sync_logs sl ON sl.id = (
			SELECT id FROM sync_logs WHERE device_id = d.id
			ORDER BY start_time DESC LIMIT 1)
		LEFT JOIN device_statuses ds ON ds.id = (
			SELECT id FROM device_statuses WHERE device_id = d.id
			ORDER BY status_time DESC, id DESC LIMIT 1)`
	var args []any
	if branchID != nil {
		query += ` WHERE d.branch_id = ?`
		args = append(args, *branchID)
	}
	query += ` ORDER BY d.id`

	rows, err := s.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var overviews []persistence.DeviceOverview
	for rows.Next() {
		var (
			o              persistence.DeviceOverview
			lastConnection sql.NullString
			lastSyncEnd    sql.NullString
		)
		if err := rows.Scan(
			&o.DeviceID, &o.Name, &o.IP, &o.Port, &o.BranchID, &o.IsActive,
			&o.ConnectionStatus, &lastConnection,
			&o.LastSyncStatus, &lastSyncEnd, &o.LastSyncNew,
			&o.SerialNumber, &o.LogCount, &o.AttendanceCount,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan device overview: %w", err)
		}
		if o.LastConnection, err = parseNullableTime(lastConnection); err != nil {
			return nil, err
		}
		if o.LastSyncEnd, err = parseNullableTime(lastSyncEnd); err != nil {
			return nil, err
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

func scanDevice(row rowScanner) (attendance.Device, error) {
	var (
		device         attendance.Device
		lastConnection sql.NullString
	)
	if err := row.Scan(
		&device.ID, &device.Name, &device.IP, &device.Port, &device.BranchID,
		&device.IsActive, &device.ConnectionStatus, &lastConnection,
	); err != nil {
		return attendance.Device{}, err
	}
	var err error
	if device.LastConnectionTime, err = parseNullableTime(lastConnection); err != nil {
		return attendance.Device{}, err
	}
	return device, nil
}
