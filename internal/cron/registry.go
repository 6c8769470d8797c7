package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is a task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type schedule struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs with their cadence. A job registered with every <= 0
// runs on each cycle.
type Registry struct {
	mu        sync.Mutex
	schedules []*schedule
	byName    map[string]*schedule
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*schedule{}}
}

// Register adds job. Names must be unique.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[job.Name()]; ok {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	s := &schedule{job: job, every: every}
	r.schedules = append(r.schedules, s)
	r.byName[job.Name()] = s
	return nil
}

// Jobs returns every registered job in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.schedules))
	for _, s := range r.schedules {
		jobs = append(jobs, s.job)
	}
	return jobs
}

// Due returns the jobs whose cadence has elapsed at now and stamps them as
// run.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, s := range r.schedules {
		if s.every > 0 && !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.every {
			continue
		}
		s.lastRun = now
		due = append(due, s.job)
	}
	return due
}
