package scheduler

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/rishansujesh/jobrun/internal/runs"
)

// Sweep deletes runs scheduled before now minus the retention window.
func (s *Scheduler) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Now().Add(-s.opts.Retention)
	n, err := s.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Logger.WithFields(log.Fields{
			"deleted": n,
			"cutoff":  runs.FormatTime(cutoff),
		}).Debug("Swept old runs")
	}
	return n, nil
}
