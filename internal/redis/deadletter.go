package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/rishansujesh/jobrun/internal/scheduler"
)

const DefaultDeadLetterMaxLen = 10000

// DeadLetter publishes permanently failed executions to a stream.
type DeadLetter struct {
	RDB    Streams
	Stream string
	MaxLen int64 // 0 means DefaultDeadLetterMaxLen
	// Timeout bounds each publish; 0 means 5s.
	Timeout time.Duration
}

func (d *DeadLetter) Publish(ctx context.Context, f scheduler.Failure) error {
	to := d.Timeout
	if to <= 0 {
		to = 5 * time.Second
	}
	maxLen := d.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultDeadLetterMaxLen
	}
	cctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	if _, err := XAddJSON(cctx, d.RDB, d.Stream, maxLen, entryFor(f)); err != nil {
		return fmt.Errorf("dead-letter %s: %w", d.Stream, err)
	}
	return nil
}

// Entry is the JSON document stored per failure.
type Entry struct {
	JobID       string `json:"job_id"`
	ExecutionID string `json:"execution_id"`
	Key         string `json:"key"`
	Attempts    int    `json:"attempts"`
	Output      string `json:"output"`
	FailedAt    string `json:"failed_at"`
}

func entryFor(f scheduler.Failure) Entry {
	return Entry{
		JobID:       f.JobID,
		ExecutionID: f.ExecutionID,
		Key:         f.Key,
		Attempts:    f.Attempts,
		Output:      f.Output,
		FailedAt:    f.FailedAt.UTC().Format(time.RFC3339),
	}
}

// List returns the newest count dead-letter entries.
func (d *DeadLetter) List(ctx context.Context, count int64) ([]DecodedMessage, error) {
	if count <= 0 {
		count = 20
	}
	return XRevRangeJSON(ctx, d.RDB, d.Stream, count)
}

var _ scheduler.FailureSink = (*DeadLetter)(nil)
