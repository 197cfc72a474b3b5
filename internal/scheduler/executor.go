package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rishansujesh/jobrun/internal/jobs"
	"github.com/rishansujesh/jobrun/internal/runs"
)

// execute runs job with up to MaxAttempts attempts, recording one run per
// attempt. Only store errors and ErrAlreadyRunning are returned.
func (s *Scheduler) execute(ctx context.Context, job jobs.Job) error {
	execID := uuid.NewString()
	logger := s.Logger.WithFields(log.Fields{
		"job_id":       job.ID,
		"execution_id": execID,
	})

	var (
		key        string
		lastOutput string
	)
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		startedAt := s.Now()
		if attempt == 1 {
			key = jobs.ExecutionKey(job.ID, startedAt)
		}

		runID, ok, err := s.Store.ClaimRunning(ctx, job.ID, startedAt)
		if err != nil {
			return err
		}
		if !ok {
			logger.WithField("attempt", attempt).Info("Job claimed by another invocation")
			return fmt.Errorf("%q: %w", job.ID, ErrAlreadyRunning)
		}

		alog := logger.WithFields(log.Fields{"attempt": attempt, "run_id": runID})
		alog.Info("Executing job")

		out := &jobs.Output{}
		workErr := s.attempt(ctx, job, &jobs.Attempt{
			JobID:       job.ID,
			RunID:       runID,
			Number:      attempt,
			ExecutionID: execID,
			Out:         out,
		})
		output := out.String()

		// The attempt row must be closed even if ctx was cancelled meanwhile.
		wctx := context.WithoutCancel(ctx)
		if workErr == nil {
			if err := s.Store.CompleteRun(wctx, runID, s.Now(), runs.StatusSuccess, output); err != nil {
				return lost(alog, err)
			}
			alog.WithField("took", s.Now().Sub(startedAt).String()).Info("Job succeeded")
			return nil
		}

		output += "\nError: " + workErr.Error()
		if err := s.Store.CompleteRun(wctx, runID, s.Now(), runs.StatusFailed, output); err != nil {
			return lost(alog, err)
		}
		lastOutput = output
		alog.WithFields(log.Fields{
			"error": &AttemptError{JobID: job.ID, RunID: runID, Attempt: attempt, Err: workErr},
		}).Warn("Job attempt failed")

		if attempt == s.opts.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
			return err
		}
	}

	s.fail(ctx, Failure{
		JobID:       job.ID,
		ExecutionID: execID,
		Key:         key,
		Attempts:    s.opts.MaxAttempts,
		Output:      lastOutput,
		FailedAt:    s.Now().UTC(),
	}, logger)
	return nil
}

// attempt invokes the work function once. AttemptTimeout cancels the work's
// context; the attempt stays in flight until the work returns, so a function
// that ignores ctx delays the next attempt instead of overlapping it.
func (s *Scheduler) attempt(ctx context.Context, job jobs.Job, a *jobs.Attempt) error {
	if s.opts.AttemptTimeout <= 0 {
		return call(ctx, job.Work, a)
	}

	actx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
	defer cancel()

	err := call(actx, job.Work, a)
	if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if err != nil {
			return fmt.Errorf("%w after %s: %v", errTimeout, s.opts.AttemptTimeout, err)
		}
		return fmt.Errorf("%w after %s", errTimeout, s.opts.AttemptTimeout)
	}
	return err
}

// lost ends an execution whose attempt row was already closed elsewhere,
// typically by another invocation reaping it as stale. Other errors pass through.
func lost(logger log.FieldLogger, err error) error {
	if !errors.Is(err, runs.ErrNotFound) {
		return err
	}
	logger.WithFields(log.Fields{
		"error": err,
	}).Warn("Attempt row closed by another invocation, ending execution")
	return nil
}

func call(ctx context.Context, work jobs.WorkFunc, a *jobs.Attempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return work(ctx, a)
}

// backoff returns the delay after a failed attempt: Backoff * 2^(attempt-1), capped.
func (s *Scheduler) backoff(attempt int) time.Duration {
	if s.opts.Backoff <= 0 {
		return 0
	}
	d := s.opts.Backoff << min(attempt-1, 16)
	if d <= 0 || d > s.opts.MaxBackoff {
		d = s.opts.MaxBackoff
	}
	return d
}

func (s *Scheduler) fail(ctx context.Context, f Failure, logger log.FieldLogger) {
	logger.WithFields(log.Fields{
		"attempts": f.Attempts,
		"key":      f.Key,
	}).Error("Job permanently failed")

	s.mu.Lock()
	fn := s.onFailure
	sinks := append([]FailureSink(nil), s.sinks...)
	s.mu.Unlock()

	if fn != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.WithField("panic", r).Error("Failure callback panicked")
				}
			}()
			fn(f.JobID, f.Output)
		}()
	}
	for _, sink := range sinks {
		if err := sink.Publish(context.WithoutCancel(ctx), f); err != nil {
			logger.WithFields(log.Fields{
				"error": err,
			}).Error("Error publishing job failure")
		}
	}
}
