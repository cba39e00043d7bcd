package attendance

import "time"

// SyncStatus is the lifecycle state of a sync outcome.
type SyncStatus string

const (
	StatusInProgress SyncStatus = "InProgress"
	StatusSuccess    SyncStatus = "Success"
	StatusFailed     SyncStatus = "Failed"
)

// Terminal reports whether the status ends a workflow.
func (s SyncStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// SyncOutcome is the audit row written once per device sync attempt.
type SyncOutcome struct {
	ID             string
	DeviceID       int64
	BranchID       int64
	StartTime      time.Time
	EndTime        *time.Time
	Status         SyncStatus
	FetchedCount   int
	NewCount       int
	DuplicateCount int
	ErrorMessage   string
	RetryAttempt   int
	ServerName     string
}

// Succeed marks the outcome successful at end.
func (o *SyncOutcome) Succeed(end time.Time, newCount, duplicates int) {
	o.Status = StatusSuccess
	o.NewCount = newCount
	o.DuplicateCount = duplicates
	o.ErrorMessage = ""
	o.EndTime = &end
}

// Fail marks the outcome failed at end with the error text.
func (o *SyncOutcome) Fail(end time.Time, err error) {
	o.Status = StatusFailed
	if err != nil {
		o.ErrorMessage = err.Error()
	}
	o.EndTime = &end
}

// Duration is the elapsed time of a finished outcome.
func (o SyncOutcome) Duration() time.Duration {
	if o.EndTime == nil {
		return 0
	}
	return o.EndTime.Sub(o.StartTime)
}
