package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyRunning means the job has an attempt in flight, in this process or another.
var ErrAlreadyRunning = errors.New("job already running")

// AttemptError describes one failed attempt. The executor recovers from it
// and retries; it never reaches the caller of Run.
type AttemptError struct {
	JobID   string
	RunID   int64
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("job %q attempt %d (run %d): %v", e.JobID, e.Attempt, e.RunID, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Failure describes an execution that exhausted every attempt.
type Failure struct {
	JobID       string    `json:"job_id"`
	ExecutionID string    `json:"execution_id"`
	Key         string    `json:"key"`
	Attempts    int       `json:"attempts"`
	Output      string    `json:"output"`
	FailedAt    time.Time `json:"failed_at"`
}

// errTimeout is wrapped into the attempt error when AttemptTimeout elapses.
var errTimeout = errors.New("attempt timed out")
