package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rishansujesh/jobrun/internal/jobs"
	"github.com/rishansujesh/jobrun/internal/runs"
)

const (
	DefaultRetention   = 7 * 24 * time.Hour
	DefaultMaxAttempts = 3
	DefaultMaxBackoff  = 30 * time.Second
)

// Options tune retry and housekeeping. Zero values select the defaults:
// 7 day retention, 3 attempts, immediate retries, no attempt timeout and no
// stale-run reaping.
type Options struct {
	Retention      time.Duration
	MaxAttempts    int
	Backoff        time.Duration // base delay before attempt 2; doubles per attempt
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	StaleAfter     time.Duration // in-flight runs older than this are failed as abandoned
}

func (o Options) withDefaults() Options {
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	return o
}

// FailureFunc receives the job id and the output of the last attempt once an
// execution has exhausted every attempt.
type FailureFunc func(jobID, output string)

// FailureSink is an additional destination for permanent failures, such as a
// dead-letter stream. Publish errors are logged and otherwise ignored.
type FailureSink interface {
	Publish(ctx context.Context, f Failure) error
}

// Scheduler decides which registered jobs are due and executes them one at a
// time. The run store is the only state shared between invocations.
type Scheduler struct {
	Registry *jobs.Registry
	Store    runs.Store
	Logger   log.FieldLogger
	Now      func() time.Time

	opts  Options
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	onFailure FailureFunc
	sinks     []FailureSink
}

func New(reg *jobs.Registry, store runs.Store, logger log.FieldLogger, opts Options) *Scheduler {
	if logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Scheduler{
		Registry: reg,
		Store:    store,
		Logger:   logger,
		Now:      time.Now,
		opts:     opts.withDefaults(),
		sleep:    sleepCtx,
	}
}

func (s *Scheduler) Options() Options { return s.opts }

// OnFailure sets the callback for permanently failed executions, replacing any previous one.
func (s *Scheduler) OnFailure(fn FailureFunc) {
	s.mu.Lock()
	s.onFailure = fn
	s.mu.Unlock()
}

// AddSink registers an extra failure destination.
func (s *Scheduler) AddSink(sink FailureSink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

type passStats struct {
	checked, executed, running, notDue int
}

// Run executes every due, non-manual job in registration order and then
// sweeps old runs. A store failure aborts the pass and is returned; job
// failures never are.
func (s *Scheduler) Run(ctx context.Context) error {
	started := s.Now()
	if err := s.Store.Ping(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if s.opts.StaleAfter > 0 {
		if err := s.reap(ctx); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	var st passStats
	for _, job := range s.Registry.Jobs() {
		if job.Schedule.IsManual() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st.checked++

		due, running, err := s.due(ctx, job)
		if err != nil {
			return fmt.Errorf("due check %q: %w", job.ID, err)
		}
		if running {
			st.running++
			s.Logger.WithField("job_id", job.ID).Debug("Skipping job with attempt in flight")
			continue
		}
		if !due {
			st.notDue++
			continue
		}

		st.executed++
		if err := s.execute(ctx, job); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return fmt.Errorf("execute %q: %w", job.ID, err)
		}
	}

	swept, err := s.Sweep(ctx)
	if err != nil {
		s.Logger.WithFields(log.Fields{
			"error": err,
		}).Error("Error sweeping old runs")
	}

	s.Logger.WithFields(log.Fields{
		"checked":  st.checked,
		"executed": st.executed,
		"running":  st.running,
		"not_due":  st.notDue,
		"swept":    swept,
		"took":     s.Now().Sub(started).String(),
	}).Info("Dispatch pass complete")
	return nil
}

// RunJob executes one job immediately, ignoring its schedule. It is the only
// way manual-only jobs run. The in-flight guard still applies.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	job, err := s.Registry.Get(id)
	if err != nil {
		return err
	}
	running, err := s.Store.IsRunning(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("run job %q: %w", job.ID, err)
	}
	if running {
		return fmt.Errorf("%q: %w", job.ID, ErrAlreadyRunning)
	}
	return s.execute(ctx, job)
}

// due reports whether job should execute now. Never-run jobs are due at once.
func (s *Scheduler) due(ctx context.Context, job jobs.Job) (due, running bool, err error) {
	running, err = s.Store.IsRunning(ctx, job.ID)
	if err != nil || running {
		return false, running, err
	}
	last, err := s.Store.LastRun(ctx, job.ID)
	if errors.Is(err, runs.ErrNotFound) {
		return true, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return job.Schedule.Due(last.ScheduledAt, s.Now()), false, nil
}

func (s *Scheduler) reap(ctx context.Context) error {
	now := s.Now()
	n, err := s.Store.ReapStale(ctx, now.Add(-s.opts.StaleAfter), now)
	if err != nil {
		return err
	}
	if n > 0 {
		s.Logger.WithFields(log.Fields{
			"count":       n,
			"stale_after": s.opts.StaleAfter.String(),
		}).Warn("Reaped abandoned runs")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
