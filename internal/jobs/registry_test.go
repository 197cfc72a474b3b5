package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rishansujesh/jobrun/internal/schedule"
)

func noop(context.Context, *Attempt) error { return nil }

func TestRegistry_ScheduleAndOrder(t *testing.T) {
	r := NewRegistry()
	for _, c := range []struct{ spec, id string }{
		{"30s", "news"},
		{"manual", "report"},
		{"@hourly", "cleanup"},
	} {
		if err := r.Schedule(c.spec, c.id, noop); err != nil {
			t.Fatalf("%s: %v", c.id, err)
		}
	}

	got := r.Jobs()
	if len(got) != 3 || got[0].ID != "news" || got[1].ID != "report" || got[2].ID != "cleanup" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Schedule.Interval() != 30*time.Second {
		t.Fatalf("want 30s interval, got %v", got[0].Schedule.Interval())
	}
	if !got[1].Schedule.IsManual() {
		t.Fatalf("report should be manual-only")
	}
}

func TestRegistry_OverwriteKeepsPosition(t *testing.T) {
	r := NewRegistry()
	_ = r.Schedule("1m", "a", noop)
	_ = r.Schedule("1m", "b", noop)
	if err := r.Schedule("1h", "a", noop); err != nil {
		t.Fatal(err)
	}
	jobs := r.Jobs()
	if len(jobs) != 2 || jobs[0].ID != "a" {
		t.Fatalf("overwrite changed order: %+v", jobs)
	}
	if jobs[0].Schedule.Interval() != time.Hour {
		t.Fatalf("overwrite did not replace schedule")
	}
}

func TestRegistry_InvalidIntervalRejected(t *testing.T) {
	r := NewRegistry()
	err := r.Schedule("sometimes", "news", noop)
	if !errors.Is(err, schedule.ErrInvalidIntervalFormat) {
		t.Fatalf("want ErrInvalidIntervalFormat, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("invalid job must not be registered")
	}
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(" ", schedule.Manual(), noop); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := r.Add("x", schedule.Manual(), nil); err == nil {
		t.Fatalf("expected error for nil work")
	}
}

func TestRegistry_GetAndClear(t *testing.T) {
	r := NewRegistry()
	_ = r.Schedule("manual", "report", noop)
	if _, err := r.Get("report"); err != nil {
		t.Fatal(err)
	}
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("clear left %d jobs", r.Len())
	}
	if _, err := r.Get("report"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAttempt_Output(t *testing.T) {
	var out Output
	a := &Attempt{JobID: "news", Out: &out}
	a.Printf("fetched %d items\n", 3)
	a.Println("done")
	if got := out.String(); !strings.Contains(got, "fetched 3 items") || !strings.HasSuffix(got, "done\n") {
		t.Fatalf("unexpected output %q", got)
	}
}
