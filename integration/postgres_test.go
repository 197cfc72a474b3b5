package integration

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rishansujesh/jobrun/internal/db"
	"github.com/rishansujesh/jobrun/internal/jobs"
	"github.com/rishansujesh/jobrun/internal/runs"
	"github.com/rishansujesh/jobrun/internal/scheduler"
)

func postgresStore(t *testing.T) *runs.SQLStore {
	t.Helper()
	dsn := os.Getenv("JOBRUN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set JOBRUN_TEST_POSTGRES_DSN to run Postgres tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := runs.Open(ctx, db.Config{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// jobID is unique per test so runs from earlier invocations never interfere.
func jobID(t *testing.T, st *runs.SQLStore, name string) string {
	id := "it-" + name + "-" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = st.DB.ExecContext(context.Background(), db.Rebind(st.Dialect, `DELETE FROM runs WHERE job_id = ?`), id)
	})
	return id
}

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	st := postgresStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestPostgres_ClaimRunningIsExclusive(t *testing.T) {
	st := postgresStore(t)
	ctx := context.Background()
	id := jobID(t, st, "claim")

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  []int64
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runID, ok, err := st.ClaimRunning(ctx, id, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				won = append(won, runID)
			}
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("claim errors: %v", errs)
	}
	if len(won) != 1 {
		t.Fatalf("want exactly one winner, got %d", len(won))
	}
	if err := st.CompleteRun(ctx, won[0], time.Now(), runs.StatusSuccess, "done"); err != nil {
		t.Fatal(err)
	}
	running, err := st.IsRunning(ctx, id)
	if err != nil || running {
		t.Fatalf("job should be idle: running=%v err=%v", running, err)
	}
}

func TestPostgres_FlakyJobFailsThreeTimes(t *testing.T) {
	st := postgresStore(t)
	ctx := context.Background()
	id := jobID(t, st, "flaky")

	reg := jobs.NewRegistry()
	if err := reg.Schedule("manual", id, func(ctx context.Context, a *jobs.Attempt) error {
		a.Println("working")
		return errors.New("boom")
	}); err != nil {
		t.Fatal(err)
	}
	s := scheduler.New(reg, st, nil, scheduler.Options{})
	var calls []string
	s.OnFailure(func(jobID, output string) { calls = append(calls, output) })

	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if running, _ := st.IsRunning(ctx, id); running {
		t.Fatalf("manual job started by Run")
	}
	if err := s.RunJob(ctx, id); err != nil {
		t.Fatal(err)
	}
	list, err := st.ListRuns(ctx, runs.ListRunsParams{JobID: id})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("want 3 failed rows, got %d", len(list))
	}
	if len(calls) != 1 {
		t.Fatalf("want 1 failure callback, got %d", len(calls))
	}
}
