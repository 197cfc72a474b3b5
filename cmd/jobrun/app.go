package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rishansujesh/jobrun/internal/config"
	"github.com/rishansujesh/jobrun/internal/jobs"
	"github.com/rishansujesh/jobrun/internal/logging"
	redisx "github.com/rishansujesh/jobrun/internal/redis"
	"github.com/rishansujesh/jobrun/internal/runs"
	"github.com/rishansujesh/jobrun/internal/scheduler"
	"github.com/rishansujesh/jobrun/internal/worker"
)

const redisConnectTimeout = 5 * time.Second

// app is everything one invocation needs: config, logger, store and the
// scheduler over the jobs declared in the config file.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	store  *runs.SQLStore
	sched  *scheduler.Scheduler
	close  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	store, err := runs.Open(ctx, cfg.DB())
	if err != nil {
		return nil, fmt.Errorf("could not open run store: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store}
	a.close = append(a.close, store.Close)

	reg := jobs.NewRegistry()
	if err := worker.Register(reg, cfg.Jobs); err != nil {
		a.Close()
		return nil, err
	}

	a.sched = scheduler.New(reg, store, logger, cfg.SchedulerOptions())
	a.sched.OnFailure(func(jobID, output string) {
		logger.WithFields(log.Fields{
			"job_id": jobID,
			"output": output,
		}).Warn("Job exhausted its attempts")
	})
	if cfg.DeadLetter.Enabled {
		if dl := a.deadLetter(ctx); dl != nil {
			a.sched.AddSink(dl)
		}
	}
	return a, nil
}

// deadLetter connects the dead-letter stream. An unreachable Redis disables
// the sink for this invocation instead of failing it.
func (a *app) deadLetter(ctx context.Context) *redisx.DeadLetter {
	cctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	rdb, err := redisx.NewClientWithBackoff(cctx, redisx.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		a.logger.WithFields(log.Fields{
			"error": err,
		}).Warn("Dead-letter stream unavailable")
		return nil
	}
	a.close = append(a.close, rdb.Close)
	return &redisx.DeadLetter{RDB: rdb, Stream: a.cfg.DeadLetter.Stream}
}

func (a *app) Close() {
	for i := len(a.close) - 1; i >= 0; i-- {
		if err := a.close[i](); err != nil {
			a.logger.WithField("error", err).Warn("Error closing resource")
		}
	}
}
