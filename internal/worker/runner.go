package worker

import (
	"fmt"

	"github.com/rishansujesh/jobrun/internal/config"
	"github.com/rishansujesh/jobrun/internal/jobs"
	"github.com/rishansujesh/jobrun/internal/schedule"
	"github.com/rishansujesh/jobrun/internal/worker/handlers"
)

// Register adds one job per definition, in file order. The first invalid
// definition aborts registration; jobs added before it stay registered.
func Register(reg *jobs.Registry, defs []config.JobDef) error {
	for _, d := range defs {
		sp, err := specFor(d)
		if err != nil {
			return fmt.Errorf("job %q: %w", d.ID, err)
		}
		work, err := handlers.Build(d.Handler, d.Args)
		if err != nil {
			return fmt.Errorf("job %q: %w", d.ID, err)
		}
		if err := reg.Add(d.ID, sp, work); err != nil {
			return fmt.Errorf("job %q: %w", d.ID, err)
		}
	}
	return nil
}

func specFor(d config.JobDef) (schedule.Spec, error) {
	sp, err := schedule.Parse(d.Schedule)
	if err != nil {
		return schedule.Spec{}, err
	}
	if d.Timezone == "" || sp.IsManual() || sp.Interval() > 0 {
		return sp, nil
	}
	return schedule.Cron(d.Schedule, d.Timezone)
}
