package testfixtures

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/example/attendance-sync/internal/attendance"
	"github.com/example/attendance-sync/internal/persistence"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("testfixtures: injected failure")

// ConnectionUpdate is one recorded UpdateDeviceConnectionStatus call.
type ConnectionUpdate struct {
	DeviceID int64
	Online   bool
	Label    string
}

// MemoryStore is an in-memory attendance and sync log store. It enforces hash
// uniqueness the same way the SQLite store does.
type MemoryStore struct {
	mu          sync.Mutex
	records     map[string]attendance.Record
	order       []string
	outcomes    []attendance.SyncOutcome
	connections []ConnectionUpdate
	statuses    []attendance.DeviceStatus
	saveCalls   int

	// FailFind makes FindExistingHashes return it.
	FailFind error
	// FailInsertOnBatch makes BulkInsert fail on that 1-based batch after
	// committing the earlier ones.
	FailInsertOnBatch int
	// FailSave makes SaveOutcome return it.
	FailSave error
	// FailLatest makes LatestSuccessfulSync return it.
	FailLatest error
}

var (
	_ persistence.AttendanceRepository = (*MemoryStore)(nil)
	_ persistence.SyncLogRepository    = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]attendance.Record)}
}

// FindExistingHashes implements the store contract.
func (m *MemoryStore) FindExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFind != nil {
		return nil, m.FailFind
	}
	existing := make(map[string]struct{})
	for _, hash := range hashes {
		if _, ok := m.records[hash]; ok {
			existing[hash] = struct{}{}
		}
	}
	return existing, nil
}

// BulkInsert implements the store contract.
func (m *MemoryStore) BulkInsert(ctx context.Context, records []attendance.Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(records)
	}
	inserted := 0
	batch := 0
	for start := 0; start < len(records); start += batchSize {
		batch++
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		end := min(start+batchSize, len(records))

		m.mu.Lock()
		if m.FailInsertOnBatch == batch {
			m.mu.Unlock()
			return inserted, ErrInjected
		}
		for _, record := range records[start:end] {
			hash := record.Hash
			if hash == "" {
				hash = attendance.HashOf(record)
				record.Hash = hash
			}
			if _, ok := m.records[hash]; ok {
				continue
			}
			m.records[hash] = record
			m.order = append(m.order, hash)
			inserted++
		}
		m.mu.Unlock()
	}
	return inserted, nil
}

// CountAttendance implements the store contract.
func (m *MemoryStore) CountAttendance(_ context.Context, deviceID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, record := range m.records {
		if record.DeviceID == deviceID {
			count++
		}
	}
	return count, nil
}

// Records returns every stored record in insertion order.
func (m *MemoryStore) Records() []attendance.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]attendance.Record, 0, len(m.order))
	for _, hash := range m.order {
		out = append(out, m.records[hash])
	}
	return out
}

// SaveOutcome implements the store contract, replacing rows with the same ID.
func (m *MemoryStore) SaveOutcome(ctx context.Context, outcome attendance.SyncOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.FailSave != nil {
		return m.FailSave
	}
	for i := range m.outcomes {
		if m.outcomes[i].ID == outcome.ID {
			m.outcomes[i] = outcome
			return nil
		}
	}
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

// LatestSuccessfulSync implements the store contract.
func (m *MemoryStore) LatestSuccessfulSync(_ context.Context, deviceID int64) (*attendance.SyncOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLatest != nil {
		return nil, m.FailLatest
	}
	var latest *attendance.SyncOutcome
	for i := range m.outcomes {
		o := m.outcomes[i]
		if o.DeviceID != deviceID || o.Status != attendance.StatusSuccess || o.EndTime == nil {
			continue
		}
		if latest == nil || o.EndTime.After(*latest.EndTime) {
			latest = &o
		}
	}
	return latest, nil
}

// ListSyncLogs implements the store contract.
func (m *MemoryStore) ListSyncLogs(_ context.Context, filter persistence.SyncLogFilter) ([]attendance.SyncOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.SyncOutcome
	for _, o := range m.outcomes {
		if filter.DeviceID != nil && o.DeviceID != *filter.DeviceID {
			continue
		}
		if filter.Status != "" && string(o.Status) != filter.Status {
			continue
		}
		if filter.Since != nil && o.StartTime.Before(*filter.Since) {
			continue
		}
		out = append(out, o)
	}
	slices.SortStableFunc(out, func(a, b attendance.SyncOutcome) int {
		return b.StartTime.Compare(a.StartTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Outcomes returns the saved outcomes in first-save order.
func (m *MemoryStore) Outcomes() []attendance.SyncOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.outcomes)
}

// SaveCalls reports how many times SaveOutcome was invoked.
func (m *MemoryStore) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// UpdateDeviceConnectionStatus records the call.
func (m *MemoryStore) UpdateDeviceConnectionStatus(_ context.Context, deviceID int64, online bool, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, ConnectionUpdate{DeviceID: deviceID, Online: online, Label: label})
	return nil
}

// ConnectionUpdates returns the recorded connection status changes.
func (m *MemoryStore) ConnectionUpdates() []ConnectionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.connections)
}

// SaveDeviceStatus records the snapshot.
func (m *MemoryStore) SaveDeviceStatus(_ context.Context, status attendance.DeviceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

// Statuses returns the recorded snapshots.
func (m *MemoryStore) Statuses() []attendance.DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.statuses)
}
