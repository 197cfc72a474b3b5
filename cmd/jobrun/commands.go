package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rishansujesh/jobrun/internal/db"
	redisx "github.com/rishansujesh/jobrun/internal/redis"
	"github.com/rishansujesh/jobrun/internal/runs"
	"github.com/rishansujesh/jobrun/internal/scheduler"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type runCommand struct{}

func (c *runCommand) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.sched.Run(ctx)
}

type runJobCommand struct {
	Args struct {
		ID string `positional-arg-name:"job-id" description:"Job id from the config file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *runJobCommand) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	err = a.sched.RunJob(ctx, c.Args.ID)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		a.logger.WithField("job_id", c.Args.ID).Warn("Job already running, nothing to do")
		return nil
	}
	return err
}

type historyCommand struct {
	Job    string `short:"j" long:"job" description:"Only runs of this job"`
	Status string `short:"s" long:"status" choice:"running" choice:"success" choice:"failed" description:"Only runs with this status"`
	Limit  int    `short:"n" long:"limit" default:"20" description:"Maximum rows to print"`
	Output bool   `short:"o" long:"output" description:"Print captured output below each run"`
}

func (c *historyCommand) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := runs.Open(ctx, cfg.DB())
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListRuns(ctx, runs.ListRunsParams{
		JobID:  c.Job,
		Status: runs.Status(c.Status),
		Limit:  c.Limit,
	})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tJOB\tSCHEDULED\tEXECUTED\tSTATUS")
	for _, r := range list {
		executed := "-"
		if r.ExecutedAt != nil {
			executed = runs.FormatTime(*r.ExecutedAt)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.JobID, runs.FormatTime(r.ScheduledAt), executed, r.Status)
		if c.Output && r.Output != "" {
			fmt.Fprintf(w, "\t%s\n", r.Output)
		}
	}
	return w.Flush()
}

type migrateCommand struct{}

func (c *migrateCommand) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sqlDB, dialect, err := db.Open(ctx, cfg.DB())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	applied, err := db.Migrate(ctx, sqlDB, dialect)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("migrations: up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Printf("migrations: applied %s\n", name)
	}
	return nil
}

type sweepCommand struct{}

func (c *sweepCommand) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	n, err := a.sched.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("swept %d runs older than %s\n", n, a.cfg.Retention)
	return nil
}

type dlqCommand struct {
	Count int64 `short:"n" long:"count" default:"20" description:"Number of entries to show"`
}

func (c *dlqCommand) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cctx, ccancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer ccancel()
	rdb, err := redisx.NewClientWithBackoff(cctx, redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	dl := &redisx.DeadLetter{RDB: rdb, Stream: cfg.DeadLetter.Stream}
	entries, err := dl.List(ctx, c.Count)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTRY\tJOB\tFAILED AT\tATTEMPTS\tOUTPUT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%q\n", e.ID, e.Payload["job_id"], e.Payload["failed_at"], e.Payload["attempts"], lastLine(e.Payload["output"]))
	}
	return w.Flush()
}

// lastLine keeps the table readable; failure output ends with the error line.
func lastLine(v any) string {
	s, _ := v.(string)
	s = strings.TrimRight(s, "\n")
	return s[strings.LastIndexByte(s, '\n')+1:]
}
