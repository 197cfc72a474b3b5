package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ManualOnly is the schedule string for jobs that only run when invoked explicitly.
const ManualOnly = "manual"

type kind int

const (
	kindManual kind = iota
	kindInterval
	kindCron
)

// Spec is a parsed job schedule: a fixed interval, a cron expression, or manual-only.
// The zero value is manual-only.
type Spec struct {
	kind     kind
	interval time.Duration
	cron     cron.Schedule
	loc      *time.Location
	raw      string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Manual returns the manual-only schedule.
func Manual() Spec { return Spec{kind: kindManual, raw: ManualOnly} }

// Every returns an interval schedule. A zero interval makes the job due on
// every pass. Every panics if d is negative.
func Every(d time.Duration) Spec {
	if d < 0 {
		panic(fmt.Sprintf("schedule: negative interval %v", d))
	}
	return Spec{kind: kindInterval, interval: d, raw: d.String()}
}

// Cron parses a standard 5-field cron expression or descriptor (@hourly, @every 90s).
// timezone is an IANA name; empty means UTC.
func Cron(expr, timezone string) (Spec, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid timezone: %w", err)
		}
		loc = l
	}
	sched, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron: %w", err)
	}
	return Spec{kind: kindCron, cron: sched, loc: loc, raw: strings.TrimSpace(expr)}, nil
}

// Parse accepts "manual", a cron expression (anything starting with '@' or
// containing whitespace), or an interval understood by ParseInterval.
// Every rejected input wraps ErrInvalidIntervalFormat.
func Parse(s string) (Spec, error) {
	raw := strings.TrimSpace(s)
	switch {
	case strings.EqualFold(raw, ManualOnly):
		return Manual(), nil
	case strings.HasPrefix(raw, "@") || strings.ContainsAny(raw, " \t"):
		sp, err := Cron(raw, "")
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidIntervalFormat, raw, err)
		}
		return sp, nil
	}
	d, err := ParseInterval(raw)
	if err != nil {
		return Spec{}, err
	}
	sp := Every(d)
	sp.raw = raw
	return sp, nil
}

func (s Spec) IsManual() bool { return s.kind == kindManual }

// Interval returns the fixed interval, or 0 for cron and manual schedules.
func (s Spec) Interval() time.Duration {
	if s.kind != kindInterval {
		return 0
	}
	return s.interval
}

// Next returns the earliest time the job is due again after a run scheduled at last.
// Manual schedules are never due; Next returns the zero time for them.
func (s Spec) Next(last time.Time) time.Time {
	switch s.kind {
	case kindInterval:
		return last.Add(s.interval)
	case kindCron:
		return s.cron.Next(last.In(s.loc))
	default:
		return time.Time{}
	}
}

// Due reports whether a job last scheduled at last is due at now.
func (s Spec) Due(last, now time.Time) bool {
	if s.kind == kindManual {
		return false
	}
	return !now.Before(s.Next(last))
}

func (s Spec) String() string {
	if s.raw == "" && s.kind == kindManual {
		return ManualOnly
	}
	return s.raw
}
