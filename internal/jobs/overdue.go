package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosuda/homeops/internal/domain"
)

// OverdueSweeper marks pending tasks past their due date as overdue and
// notifies the recipient of each one.
type OverdueSweeper struct {
	stores   StoreOpener
	clock    Clock
	notifier Notifier
}

// NewOverdueSweeper creates a sweeper. notifier may be nil.
func NewOverdueSweeper(stores StoreOpener, clock Clock, notifier Notifier) *OverdueSweeper {
	return &OverdueSweeper{stores: stores, clock: clock, notifier: notifier}
}

func (s *OverdueSweeper) Name() Name { return NameOverdue }

// Run returns the number of tasks moved to overdue. The status update and
// the notifications commit together or not at all.
func (s *OverdueSweeper) Run(ctx context.Context, houseID int64) (int, error) {
	store, err := s.stores.Open(ctx, houseID)
	if err != nil {
		return 0, fmt.Errorf("jobs.OverdueSweeper.Run(%d): %w", houseID, err)
	}

	today := Today(s.clock.Now())

	var (
		marked int
		notes  []*domain.Notification
	)
	err = store.InTx(ctx, func(tx domain.TaskTx) error {
		marked, notes = 0, nil

		if err := tx.AdvisoryLock(ctx, lockKeyOverdue); err != nil {
			return err
		}

		tasks, err := tx.MarkOverdue(ctx, today)
		if err != nil {
			return err
		}

		for _, t := range tasks {
			inst, err := tx.InstallmentForTask(ctx, t.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}

			n := overdueNotification(t, inst)
			if _, err := tx.CreateNotification(ctx, n); err != nil {
				return err
			}
			notes = append(notes, n)
		}

		marked = len(tasks)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("jobs.OverdueSweeper.Run(%d): %w", houseID, err)
	}

	notifyCreated(ctx, s.notifier, houseID, notes)

	return marked, nil
}

func overdueNotification(t *domain.Task, inst *domain.Installment) *domain.Notification {
	msg := fmt.Sprintf("Task %q was due on %s and is now overdue.", t.Title, t.DueDate.Format(time.DateOnly))
	if inst != nil {
		msg += fmt.Sprintf(" Installment amount: %s.", inst.Amount.StringFixed(2))
	}

	id := t.ID
	return &domain.Notification{
		UserID:      t.Recipient(),
		Title:       "Task overdue",
		Message:     msg,
		RelatedType: strPtr(domain.RelatedTask),
		RelatedID:   &id,
	}
}
