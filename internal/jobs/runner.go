package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/homeops/internal/domain"
)

// HouseLister lists every house to run a job against.
type HouseLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

// RunLocker guards a (job, house) run across processes. Acquire returns
// domain.ErrLocked when another holder owns key.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), err error)
}

// HouseResult is the outcome of one job on one house.
type HouseResult struct {
	HouseID  int64         `json:"house_id"`
	Count    int           `json:"count"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`

	Err error `json:"-"`
}

// Report summarizes one run of a job across houses.
type Report struct {
	RunID      uuid.UUID     `json:"run_id"`
	Job        Name          `json:"job"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Results    []HouseResult `json:"results"`
}

// Affected sums Count over all houses.
func (r *Report) Affected() int {
	n := 0
	for _, res := range r.Results {
		n += res.Count
	}
	return n
}

// Failed counts houses whose run returned an error.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// RunnerConfig bounds a batch run.
type RunnerConfig struct {
	Workers int           // concurrent houses
	Timeout time.Duration // per house
	LockTTL time.Duration // 0 disables the run lock
}

// Runner executes a job for every house. Houses run on a bounded worker pool,
// each under its own timeout; a failing house never affects the others.
type Runner struct {
	houses HouseLister
	locker RunLocker
	cfg    RunnerConfig
	clock  Clock
}

// NewRunner creates a Runner. locker may be nil.
func NewRunner(houses HouseLister, locker RunLocker, clock Clock, cfg RunnerConfig) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{houses: houses, locker: locker, cfg: cfg, clock: clock}
}

// Run executes job against every house listed by the control database. The
// error is non-nil only when the house list cannot be read.
func (r *Runner) Run(ctx context.Context, job Job) (*Report, error) {
	ids, err := r.houses.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs.Runner.Run(%s): list houses: %w", job.Name(), err)
	}
	return r.RunHouses(ctx, job, ids), nil
}

// RunHouses executes job against the given houses.
func (r *Runner) RunHouses(ctx context.Context, job Job, houseIDs []int64) *Report {
	report := &Report{
		RunID:     uuid.New(),
		Job:       job.Name(),
		StartedAt: r.clock.Now(),
		Results:   make([]HouseResult, len(houseIDs)),
	}
	logger := log.With().Str("job", string(job.Name())).Str("run_id", report.RunID.String()).Logger()
	logger.Info().Int("houses", len(houseIDs)).Msg("jobs: run started")

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, id := range houseIDs {
		g.Go(func() error {
			report.Results[i] = r.runHouse(ctx, job, id)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = r.clock.Now()

	for _, res := range report.Results {
		ev := logger.Info()
		if res.Err != nil {
			ev = logger.Error().Err(res.Err)
		}
		ev.Int64("house_id", res.HouseID).Int("count", res.Count).Bool("skipped", res.Skipped).
			Dur("took", res.Duration).Msg("jobs: house finished")
	}
	logger.Info().Int("affected", report.Affected()).Int("failed", report.Failed()).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).Msg("jobs: run finished")

	return report
}

func (r *Runner) runHouse(ctx context.Context, job Job, houseID int64) HouseResult {
	start := time.Now()
	res := HouseResult{HouseID: houseID}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if r.locker != nil && r.cfg.LockTTL > 0 {
		release, err := r.locker.Acquire(ctx, lockName(job.Name(), houseID), r.cfg.LockTTL)
		if errors.Is(err, domain.ErrLocked) {
			res.Skipped = true
			res.Duration = time.Since(start)
			runCounter.WithLabelValues(string(job.Name()), "skipped").Inc()
			return res
		}
		// The per-house advisory lock still serializes writers, so a lock
		// backend outage degrades to running unguarded.
		if err != nil {
			log.Warn().Err(err).Str("job", string(job.Name())).Int64("house_id", houseID).
				Msg("jobs: run lock unavailable, continuing without it")
		} else {
			defer release(context.WithoutCancel(ctx))
		}
	}

	res.Count, res.Err = job.Run(ctx, houseID)
	return r.finish(job, res, start, res.Err)
}

func (r *Runner) finish(job Job, res HouseResult, start time.Time, err error) HouseResult {
	res.Duration = time.Since(start)
	res.Err = err

	name := string(job.Name())
	houseDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
	if err != nil {
		res.Count = 0
		res.Error = err.Error()
		runCounter.WithLabelValues(name, "failed").Inc()
		return res
	}
	runCounter.WithLabelValues(name, "ok").Inc()
	affectedCounter.WithLabelValues(name).Add(float64(res.Count))
	return res
}

func lockName(job Name, houseID int64) string {
	return "homeops:job:" + string(job) + ":" + strconv.FormatInt(houseID, 10)
}
