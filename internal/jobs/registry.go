package jobs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rishansujesh/jobrun/internal/schedule"
)

var ErrNotFound = errors.New("job not found")

// Registry maps job ids to their schedule and work. It is rebuilt by every
// process invocation. Iteration follows registration order; re-registering an
// id replaces the job in place.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]Job
	order []string
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]Job{}}
}

// Schedule parses spec (an interval, a cron expression or schedule.ManualOnly)
// and registers work under id. Invalid specs are rejected immediately.
func (r *Registry) Schedule(spec, id string, work WorkFunc) error {
	sp, err := schedule.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", id, err)
	}
	return r.Add(id, sp, work)
}

// Add registers a job with a parsed schedule.
func (r *Registry) Add(id string, sp schedule.Spec, work WorkFunc) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("job id required")
	}
	if work == nil {
		return fmt.Errorf("job %q: work function required", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = map[string]Job{}
	}
	if _, exists := r.jobs[id]; !exists {
		r.order = append(r.order, id)
	}
	r.jobs[id] = Job{ID: id, Schedule: sp, Work: work}
	return nil
}

func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return j, nil
}

// Jobs returns a snapshot in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every registered job.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = map[string]Job{}
	r.order = nil
}
