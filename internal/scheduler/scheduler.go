// Package scheduler runs recurring maintenance jobs for mediarr on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/mediarr/internal/observability"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	expr     string
	schedule cron.Schedule
	run      JobFunc

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// JobStatus describes a registered job.
type JobStatus struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_error,omitempty"`
}

// Scheduler runs registered jobs on their cron schedules. A job never
// overlaps itself; a run that is still going when the next one is due
// causes that tick to be skipped.
type Scheduler struct {
	mu sync.RWMutex

	jobs   map[string]*job
	logger *slog.Logger
	now    func() time.Time

	// cron parser for validating/parsing cron expressions
	parser cron.Parser

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]*job),
		logger: slog.Default(),
		now:    time.Now,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = observability.WithComponent(logger, "scheduler")
	return s
}

// AddJob registers a job. Jobs must be added before Start.
func (s *Scheduler) AddJob(name, expr string, fn JobFunc) error {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression for job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = &job{name: name, expr: expr, schedule: schedule, run: fn}
	return nil
}

// Start begins running the registered jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(j)
	}

	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

// Stop stops the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// loop waits for each due time of j and runs it.
func (s *Scheduler) loop(j *job) {
	defer s.wg.Done()

	for {
		next := j.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(s.ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if !j.mu.TryLock() {
		s.logger.Debug("skipping overlapping run", slog.String("job", j.name))
		return nil
	}
	defer j.mu.Unlock()

	err := j.run(ctx)
	j.lastRun = s.now()
	j.lastErr = err
	if err != nil {
		s.logger.Error("scheduled job failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// RunNow runs a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.execute(ctx, j)
}

// Jobs returns the status of every registered job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{Name: j.name, Cron: j.expr, NextRun: j.schedule.Next(now)}
		if j.mu.TryLock() {
			st.LastRun = j.lastRun
			if j.lastErr != nil {
				st.LastErr = j.lastErr.Error()
			}
			j.mu.Unlock()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// ParseCron validates a cron expression and returns the next run time.
func (s *Scheduler) ParseCron(expr string) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(s.now()), nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
