package cron

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered jobs on their cron expressions. Every job owns a
// guard mutex, so a tick that fires while the previous run is still going is
// dropped instead of stacking a second run.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	guards map[string]*sync.Mutex
	logger *slog.Logger
	jobCtx context.Context
	cancel context.CancelFunc
}

// NewScheduler returns an empty scheduler. Register jobs, then call Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		guards: make(map[string]*sync.Mutex),
		logger: cmp.Or(logger, slog.Default()),
	}
}

// RegisterJob adds a job under its unique name. Jobs registered after Start
// do not join the running schedule.
func (s *Scheduler) RegisterJob(j Job) error {
	name := j.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.guards[name]; dup {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.guards[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Jobs returns the names of all registered jobs, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.guards))
}

// Start begins executing registered jobs. Job contexts derive from ctx, so
// cancelling it aborts in-flight runs; Stop also cancels them. Start fails
// when any registered job carries an invalid schedule expression.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobCtx, s.cancel = context.WithCancel(ctx)

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Schedule(), s.tick(s.jobCtx, job)); err != nil {
			s.cancel()
			return fmt.Errorf("cron: job %q schedule %q: %w", job.Name(), job.Schedule(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "registered", len(s.jobs))
	return nil
}

// tick wraps one job for the cron callback, enforcing its guard.
func (s *Scheduler) tick(ctx context.Context, job Job) func() {
	guard := s.guards[job.Name()]
	return func() {
		if !guard.TryLock() {
			s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
			return
		}
		defer guard.Unlock()

		s.logger.Debug("cron: job started", "job", job.Name())
		if err := job.Run(ctx); err != nil {
			s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
			return
		}
		s.logger.Debug("cron: job completed", "job", job.Name())
	}
}

// Stop cancels job contexts and waits for in-flight runs to drain.
func (s *Scheduler) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("cron: scheduler stopped")
	return nil
}
