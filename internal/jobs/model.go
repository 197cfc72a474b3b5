package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rishansujesh/jobrun/internal/schedule"
)

// WorkFunc is a unit of work. Anything written to a.Out becomes the run output.
// A non-nil error (or a panic) fails the attempt.
type WorkFunc func(ctx context.Context, a *Attempt) error

// Job is a registered, process-local unit of work. Jobs are never persisted.
type Job struct {
	ID       string
	Schedule schedule.Spec
	Work     WorkFunc
}

// Attempt is passed to a WorkFunc for one execution attempt.
type Attempt struct {
	JobID       string
	RunID       int64
	Number      int    // 1-based
	ExecutionID string // shared by every attempt of one execution

	Out io.Writer
}

func (a *Attempt) Printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

func (a *Attempt) Println(args ...any) {
	fmt.Fprintln(a.Out, args...)
}

// Output is a goroutine-safe capture buffer for attempt output.
type Output struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

func (o *Output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}
