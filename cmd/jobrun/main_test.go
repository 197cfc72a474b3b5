package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"

	"github.com/rishansujesh/jobrun/internal/db"
	"github.com/rishansujesh/jobrun/internal/jobs"
	"github.com/rishansujesh/jobrun/internal/runs"
)

func writeConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "runs.db")
	cfgPath = filepath.Join(dir, "jobrun.yaml")
	doc := fmt.Sprintf(`
store:
  path: %s
log:
  level: error
jobs:
  - id: hello
    schedule: 1h
    handler: shell
    args:
      command: echo hello
  - id: flaky
    schedule: manual
    handler: shell
    args:
      command: echo boom; exit 1
`, dbPath)
	if err := os.WriteFile(cfgPath, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dbPath
}

func openRuns(t *testing.T, path string) *runs.SQLStore {
	t.Helper()
	st, err := runs.Open(context.Background(), db.Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunCommand_ExecutesDueJobsOnce(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	opts.Config = cfgPath

	for i := 0; i < 2; i++ {
		if err := (&runCommand{}).Execute(nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	list, err := openRuns(t, dbPath).ListRuns(context.Background(), runs.ListRunsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].JobID != "hello" || list[0].Status != runs.StatusSuccess {
		t.Fatalf("want one successful hello run, got %+v", list)
	}
	if list[0].Output != "hello\n" {
		t.Fatalf("unexpected output %q", list[0].Output)
	}
}

func TestRunJobCommand_ManualJobFailsThreeTimes(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	opts.Config = cfgPath

	cmd := &runJobCommand{}
	cmd.Args.ID = "flaky"
	if err := cmd.Execute(nil); err != nil {
		t.Fatalf("permanent failure should not be an error: %v", err)
	}

	list, err := openRuns(t, dbPath).ListRuns(context.Background(), runs.ListRunsParams{JobID: "flaky"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("want 3 attempts, got %d", len(list))
	}
	for _, r := range list {
		if r.Status != runs.StatusFailed {
			t.Fatalf("unexpected status %s", r.Status)
		}
	}
}

func TestRunJobCommand_UnknownJob(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	opts.Config = cfgPath

	cmd := &runJobCommand{}
	cmd.Args.ID = "nope"
	if err := cmd.Execute(nil); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	opts.Config = filepath.Join(t.TempDir(), "missing.yaml")
	if err := (&migrateCommand{}).Execute(nil); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestParser_Commands(t *testing.T) {
	var o Options
	p := flags.NewParser(&o, flags.HelpFlag)
	for _, name := range []string{"run", "run-job", "history", "migrate", "sweep", "dlq"} {
		if p.Find(name) == nil {
			t.Fatalf("command %q not registered", name)
		}
	}
	if _, err := p.ParseArgs([]string{"history", "--status", "pending"}); err == nil {
		t.Fatalf("expected invalid choice error")
	}
}

func TestLastLine(t *testing.T) {
	cases := map[string]string{
		"":                        "",
		"single":                  "single",
		"boom\n\nError: exit 1\n": "Error: exit 1",
	}
	for in, want := range cases {
		if got := lastLine(in); got != want {
			t.Fatalf("lastLine(%q) = %q, want %q", in, got, want)
		}
	}
}
