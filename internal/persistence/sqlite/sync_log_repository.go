package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
)

const syncLogColumns = `id, device_id, branch_id, start_time, end_time, status,
	fetched_count, new_count, duplicate_count, COALESCE(error_message, ''),
	retry_attempt, COALESCE(server_name, '')`

// SaveOutcome inserts the outcome or replaces the row with the same ID.
func (s *Storage) SaveOutcome(ctx context.Context, outcome attendance.SyncOutcome) error {
	const query = `
		INSERT INTO sync_logs (
			id, device_id, branch_id, start_time, end_time, status,
			fetched_count, new_count, duplicate_count, error_message,
			retry_attempt, server_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			status = excluded.status,
			fetched_count = excluded.fetched_count,
			new_count = excluded.new_count,
			duplicate_count = excluded.duplicate_count,
			error_message = excluded.error_message,
			retry_attempt = excluded.retry_attempt,
			server_name = excluded.server_name`

	return s.retry.WithRetry(ctx, func() error {
		_, err := s.helper.Exec(ctx, query,
			outcome.ID,
			outcome.DeviceID,
			outcome.BranchID,
			formatTime(outcome.StartTime),
			formatNullableTime(outcome.EndTime),
			string(outcome.Status),
			outcome.FetchedCount,
			outcome.NewCount,
			outcome.DuplicateCount,
			nullString(outcome.ErrorMessage),
			outcome.RetryAttempt,
			nullString(outcome.ServerName),
		)
		return err
	})
}

// LatestSuccessfulSync returns the most recently finished successful outcome
// of the device, or nil when it has never synced successfully.
func (s *Storage) LatestSuccessfulSync(ctx context.Context, deviceID int64) (*attendance.SyncOutcome, error) {
	query := `SELECT ` + syncLogColumns + `
		FROM sync_logs
		WHERE device_id = ? AND status = ? AND end_time IS NOT NULL
		ORDER BY end_time DESC
		LIMIT 1`

	outcome, err := scanOutcome(s.helper.QueryRow(ctx, query, deviceID, string(attendance.StatusSuccess)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	return &outcome, nil
}

// ListSyncLogs returns outcomes matching filter, newest first.
func (s *Storage) ListSyncLogs(ctx context.Context, filter persistence.SyncLogFilter) ([]attendance.SyncOutcome, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.DeviceID != nil {
		conditions = append(conditions, "device_id = ?")
		args = append(args, *filter.DeviceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Since != nil {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, formatTime(*filter.Since))
	}

	query := `SELECT ` + syncLogColumns + ` FROM sync_logs`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY start_time DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var outcomes []attendance.SyncOutcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (attendance.SyncOutcome, error) {
	var (
		outcome attendance.SyncOutcome
		start   string
		end     sql.NullString
		status  string
	)
	err := row.Scan(
		&outcome.ID,
		&outcome.DeviceID,
		&outcome.BranchID,
		&start,
		&end,
		&status,
		&outcome.FetchedCount,
		&outcome.NewCount,
		&outcome.DuplicateCount,
		&outcome.ErrorMessage,
		&outcome.RetryAttempt,
		&outcome.ServerName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return outcome, err
		}
		return outcome, fmt.Errorf("sqlite: scan sync log: %w", err)
	}
	outcome.Status = attendance.SyncStatus(status)
	if outcome.StartTime, err = parseTime(start); err != nil {
		return outcome, err
	}
	if outcome.EndTime, err = parseNullableTime(end); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
