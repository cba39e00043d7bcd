package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/attendance-sync/internal/attendance"
)

// hashLookupChunk keeps IN lists below SQLite's bound parameter limit.
const hashLookupChunk = 500

// FindExistingHashes returns the subset of hashes already stored.
func (s *Storage) FindExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(hashes); start += hashLookupChunk {
		end := min(start+hashLookupChunk, len(hashes))
		chunk := hashes[start:end]

		args := make([]any, len(chunk))
		for i, hash := range chunk {
			args[i] = hash
		}
		query := `SELECT unique_hash FROM attendance_logs WHERE unique_hash IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + `)`

		if err := s.collectHashes(ctx, query, args, existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (s *Storage) collectHashes(ctx context.Context, query string, args []any, into map[string]struct{}) error {
	rows, err := s.helper.Query(ctx, query, args...)
	if err != nil {
		return s.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return fmt.Errorf("sqlite: scan hash: %w", err)
		}
		into[hash] = struct{}{}
	}
	return rows.Err()
}

// BulkInsert writes records batchSize rows per transaction. A hash that already
// exists is skipped by the unique index, so concurrent writers never duplicate.
func (s *Storage) BulkInsert(ctx context.Context, records []attendance.Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(records)
	}
	inserted := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		var batchInserted int
		err := s.retry.WithRetry(ctx, func() error {
			n, err := s.insertBatch(ctx, records[start:end])
			batchInserted = n
			return err
		})
		if err != nil {
			return inserted, fmt.Errorf("sqlite: insert batch %d-%d: %w", start, end, err)
		}
		inserted += batchInserted
	}
	return inserted, nil
}

func (s *Storage) insertBatch(ctx context.Context, batch []attendance.Record) (int, error) {
	const query = `
		INSERT INTO attendance_logs (
			biometric_user_id, device_id, branch_id, attendance_time,
			verify_method, attendance_type, work_code, unique_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_hash) DO NOTHING`

	inserted := 0
	createdAt := formatTime(s.now())
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, record := range batch {
			hash := record.Hash
			if hash == "" {
				hash = attendance.HashOf(record)
			}
			result, err := stmt.ExecContext(ctx,
				record.BiometricUserID,
				record.DeviceID,
				record.BranchID,
				formatTime(record.Time),
				record.VerifyMethod,
				record.AttendanceType,
				record.WorkCode,
				hash,
				createdAt,
			)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// CountAttendance returns how many punches are stored for a device.
func (s *Storage) CountAttendance(ctx context.Context, deviceID int64) (int, error) {
	var count int
	err := s.helper.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_logs WHERE device_id = ?`, deviceID).Scan(&count)
	if err != nil {
		return 0, s.mapper.MapError(err)
	}
	return count, nil
}

// ListAttendance returns a device's punches in time order, for inspection and tests.
func (s *Storage) ListAttendance(ctx context.Context, deviceID int64) ([]attendance.Record, error) {
	const query = `
		SELECT biometric_user_id, device_id, branch_id, attendance_time,
			COALESCE(verify_method, ''), COALESCE(attendance_type, ''), work_code, unique_hash
		FROM attendance_logs
		WHERE device_id = ?
		ORDER BY attendance_time, id`

	rows, err := s.helper.Query(ctx, query, deviceID)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		var (
			record attendance.Record
			at     string
		)
		if err := rows.Scan(&record.BiometricUserID, &record.DeviceID, &record.BranchID, &at,
			&record.VerifyMethod, &record.AttendanceType, &record.WorkCode, &record.Hash); err != nil {
			return nil, fmt.Errorf("sqlite: scan attendance: %w", err)
		}
		if record.Time, err = parseTime(at); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
