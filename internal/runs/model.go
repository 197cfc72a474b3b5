package runs

import (
	"time"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a run in this status has finished.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Run is one execution attempt. ExecutedAt is nil while the attempt is in flight.
type Run struct {
	ID          int64      `json:"id"`
	JobID       string     `json:"job_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	Status      Status     `json:"status"`
	Output      string     `json:"output"`
}

// InFlight reports whether the attempt has not completed yet.
func (r Run) InFlight() bool { return r.ExecutedAt == nil }

// TimeLayout is the sortable text form used for scheduled_at and executed_at.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in UTC with second precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}
