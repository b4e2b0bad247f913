package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/domain"
)

// RecurrenceEngine creates the next occurrence of completed recurring tasks.
type RecurrenceEngine struct {
	stores StoreOpener
	clock  Clock
}

func NewRecurrenceEngine(stores StoreOpener, clock Clock) *RecurrenceEngine {
	return &RecurrenceEngine{stores: stores, clock: clock}
}

func (e *RecurrenceEngine) Name() Name { return NameRecurrence }

// Run generates next instances for one house inside a single transaction and
// returns how many tasks were created. Any insert failure rolls the whole
// house back. Tasks with an invalid rule are logged and skipped.
//
// A candidate is only selected while no later task with the same title and
// creator exists, so repeating a run (or retrying a failed one) never
// generates the same occurrence twice.
func (e *RecurrenceEngine) Run(ctx context.Context, houseID int64) (int, error) {
	store, err := e.stores.Open(ctx, houseID)
	if err != nil {
		return 0, fmt.Errorf("jobs.RecurrenceEngine.Run(%d): %w", houseID, err)
	}

	today := Today(e.clock.Now())

	var created int
	err = store.InTx(ctx, func(tx domain.TaskTx) error {
		created = 0

		if err := tx.AdvisoryLock(ctx, lockKeyRecurrence); err != nil {
			return err
		}

		candidates, err := tx.ListRecurrenceCandidates(ctx, today)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			rec, err := c.Rule.Parse()
			if err != nil {
				invalidRecurrenceCounter.Inc()
				log.Error().Err(err).Int64("house_id", houseID).Int64("task_id", c.Task.ID).
					Msg("jobs: task has an invalid recurrence rule, skipping")
				continue
			}

			next := rec.Next(c.Task.DueDate)
			if c.Rule.Ends(next) {
				continue
			}

			task := nextInstance(&c.Task, next)
			id, err := tx.CreateTask(ctx, task)
			if err != nil {
				return err
			}
			if err := tx.CreateRecurrenceRule(ctx, id, c.Rule); err != nil {
				return err
			}
			created++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("jobs.RecurrenceEngine.Run(%d): %w", houseID, err)
	}

	return created, nil
}

// nextInstance copies src into a new pending task due on due.
func nextInstance(src *domain.Task, due time.Time) *domain.Task {
	t := *src
	t.ID = 0
	t.Status = domain.TaskStatusPending
	t.DueDate = due
	return &t
}
