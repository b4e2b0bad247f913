package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosuda/homeops/internal/domain"
)

// DigestNotifier sends each user one notification listing the pending tasks
// due today.
type DigestNotifier struct {
	stores   StoreOpener
	clock    Clock
	notifier Notifier
}

// NewDigestNotifier creates a digest job. notifier may be nil.
func NewDigestNotifier(stores StoreOpener, clock Clock, notifier Notifier) *DigestNotifier {
	return &DigestNotifier{stores: stores, clock: clock, notifier: notifier}
}

func (d *DigestNotifier) Name() Name { return NameDigest }

// Run returns the number of users notified.
func (d *DigestNotifier) Run(ctx context.Context, houseID int64) (int, error) {
	store, err := d.stores.Open(ctx, houseID)
	if err != nil {
		return 0, fmt.Errorf("jobs.DigestNotifier.Run(%d): %w", houseID, err)
	}

	today := Today(d.clock.Now())

	var notes []*domain.Notification
	err = store.InTx(ctx, func(tx domain.TaskTx) error {
		notes = nil

		if err := tx.AdvisoryLock(ctx, lockKeyDigest); err != nil {
			return err
		}

		tasks, err := tx.ListPendingDueOn(ctx, today)
		if err != nil {
			return err
		}

		for _, g := range groupByRecipient(tasks) {
			n := digestNotification(g.userID, g.titles)
			if _, err := tx.CreateNotification(ctx, n); err != nil {
				return err
			}
			notes = append(notes, n)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("jobs.DigestNotifier.Run(%d): %w", houseID, err)
	}

	notifyCreated(ctx, d.notifier, houseID, notes)

	return len(notes), nil
}

type recipientTasks struct {
	userID int64
	titles []string
}

// groupByRecipient keeps users in order of first appearance.
func groupByRecipient(tasks []*domain.Task) []*recipientTasks {
	var (
		groups []*recipientTasks
		index  = make(map[int64]*recipientTasks)
	)
	for _, t := range tasks {
		uid := t.Recipient()
		g, ok := index[uid]
		if !ok {
			g = &recipientTasks{userID: uid}
			index[uid] = g
			groups = append(groups, g)
		}
		g.titles = append(g.titles, t.Title)
	}
	return groups
}

func digestNotification(userID int64, titles []string) *domain.Notification {
	noun := "tasks"
	if len(titles) == 1 {
		noun = "task"
	}

	return &domain.Notification{
		UserID:      userID,
		Title:       "Tasks due today",
		Message:     fmt.Sprintf("You have %d %s due today: %s", len(titles), noun, strings.Join(titles, ", ")),
		RelatedType: strPtr(domain.RelatedDigest),
	}
}
