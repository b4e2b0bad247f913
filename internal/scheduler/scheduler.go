// Package scheduler triggers the daily jobs from cron expressions and keeps
// the latest report of each.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/jobs"
)

// BatchRunner runs a job across houses. *jobs.Runner satisfies this interface.
type BatchRunner interface {
	Run(ctx context.Context, job jobs.Job) (*jobs.Report, error)
	RunHouses(ctx context.Context, job jobs.Job, houseIDs []int64) *jobs.Report
}

type entry struct {
	job      jobs.Job
	spec     string
	schedule cron.Schedule
}

// Scheduler owns the cron loop. Jobs registered with Add fire on their
// schedule once Start is called and can be triggered by hand at any time.
// At most one run of a given job is in flight in this process.
type Scheduler struct {
	runner BatchRunner
	clock  jobs.Clock
	loc    *time.Location
	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	base    context.Context //nolint:containedctx // parent of cron-triggered runs
	entries map[jobs.Name]*entry
	order   []jobs.Name
	running map[jobs.Name]bool
	last    map[jobs.Name]*jobs.Report
}

func New(runner BatchRunner, clock jobs.Clock, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		runner: runner,
		clock:  clock,
		loc:    loc,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: make(map[jobs.Name]*entry),
		running: make(map[jobs.Name]bool),
		last:    make(map[jobs.Name]*jobs.Report),
	}
}

// Add registers job on a cron spec. Adding a name twice replaces the schedule
// before Start; after Start it returns an error.
func (s *Scheduler) Add(job jobs.Job, spec string) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("scheduler.Add(%s): parse %q: %w", job.Name(), spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		return fmt.Errorf("scheduler.Add(%s): scheduler already started", job.Name())
	}
	if _, ok := s.entries[job.Name()]; !ok {
		s.order = append(s.order, job.Name())
	}
	s.entries[job.Name()] = &entry{job: job, spec: spec, schedule: sched}

	return nil
}

// Start begins cron triggering. Runs started by cron derive from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	s.base = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, name := range s.order {
		e := s.entries[name]
		s.c.Schedule(e.schedule, cron.FuncJob(func() { s.fire(name) }))
	}
	s.c.Start()

	log.Info().Str("tz", s.loc.String()).Int("schedules", len(s.order)).Msg("scheduler: started")
}

// Stop stops triggering and waits for in-flight cron runs or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	log.Info().Msg("scheduler: stopped")
}

func (s *Scheduler) fire(name jobs.Name) {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()

	if _, err := s.Trigger(ctx, name); err != nil {
		log.Error().Err(err).Str("job", string(name)).Msg("scheduler: scheduled run failed")
	}
}

// Trigger runs the named job now across every house and records its report.
// A job already in flight yields domain.ErrLocked; an unknown name
// domain.ErrNotFound.
func (s *Scheduler) Trigger(ctx context.Context, name jobs.Name) (*jobs.Report, error) {
	return s.trigger(ctx, name, func(job jobs.Job) (*jobs.Report, error) {
		return s.runner.Run(ctx, job)
	})
}

// TriggerHouses runs the named job now for the given houses only. An empty
// list behaves like Trigger.
func (s *Scheduler) TriggerHouses(ctx context.Context, name jobs.Name, houseIDs []int64) (*jobs.Report, error) {
	if len(houseIDs) == 0 {
		return s.Trigger(ctx, name)
	}
	return s.trigger(ctx, name, func(job jobs.Job) (*jobs.Report, error) {
		return s.runner.RunHouses(ctx, job, houseIDs), nil
	})
}

func (s *Scheduler) trigger(ctx context.Context, name jobs.Name, run func(jobs.Job) (*jobs.Report, error)) (*jobs.Report, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler.Trigger(%s): %w", name, domain.ErrNotFound)
	}
	if s.running[name] {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler.Trigger(%s): %w", name, domain.ErrLocked)
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	report, err := run(e.job)
	if err != nil {
		return nil, fmt.Errorf("scheduler.Trigger(%s): %w", name, err)
	}

	s.mu.Lock()
	s.last[name] = report
	s.mu.Unlock()

	return report, nil
}

// Last returns the most recent report of the named job.
func (s *Scheduler) Last(name jobs.Name) (*jobs.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[name]
	return r, ok
}

// Next returns the first fire time of the named job strictly after after.
func (s *Scheduler) Next(name jobs.Name, after time.Time) (time.Time, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("scheduler.Next(%s): %w", name, domain.ErrNotFound)
	}
	return e.schedule.Next(after.In(s.loc)), nil
}

// Status describes one registered job.
type Status struct {
	Job     jobs.Name    `json:"job"`
	Spec    string       `json:"spec"`
	NextRun time.Time    `json:"next_run"`
	Running bool         `json:"running"`
	Last    *jobs.Report `json:"last,omitempty"`
}

// Statuses reports every registered job in registration order, with next run
// times computed from the scheduler's clock.
func (s *Scheduler) Statuses() []Status {
	now := s.clock.Now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		out = append(out, Status{
			Job:     name,
			Spec:    e.spec,
			NextRun: e.schedule.Next(now),
			Running: s.running[name],
			Last:    s.last[name],
		})
	}
	return out
}

// Names returns the registered job names in registration order.
func (s *Scheduler) Names() []jobs.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}
