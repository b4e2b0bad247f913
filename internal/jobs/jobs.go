// Package jobs holds the daily house maintenance jobs and the runner that
// fans them out across houses.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/domain"
)

type Name string

const (
	NameRecurrence Name = "recurrence"
	NameOverdue    Name = "overdue"
	NameDigest     Name = "digest"
)

// Names lists every job in a stable order.
func Names() []Name {
	return []Name{NameRecurrence, NameDigest, NameOverdue}
}

// Job processes one house and returns the number of affected items.
type Job interface {
	Name() Name
	Run(ctx context.Context, houseID int64) (int, error)
}

// StoreOpener opens the store of one house. *postgres.Houses satisfies this interface.
type StoreOpener interface {
	Open(ctx context.Context, houseID int64) (domain.HouseStore, error)
}

// Notifier is told about notifications after their transaction committed.
type Notifier interface {
	NotificationsCreated(ctx context.Context, houseID int64, notes []*domain.Notification) error
}

// Clock supplies the current time. Jobs derive "today" from it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// Today truncates now to its calendar date, expressed as midnight UTC so it
// compares equal to DATE values read from postgres.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Advisory lock keys, one per job, held for the length of a house transaction.
const (
	lockKeyRecurrence int64 = 0x686f6d6501
	lockKeyOverdue    int64 = 0x686f6d6502
	lockKeyDigest     int64 = 0x686f6d6503
)

func notifyCreated(ctx context.Context, n Notifier, houseID int64, notes []*domain.Notification) {
	if n == nil || len(notes) == 0 {
		return
	}
	if err := n.NotificationsCreated(ctx, houseID, notes); err != nil {
		log.Warn().Err(err).Int64("house_id", houseID).Int("notifications", len(notes)).
			Msg("jobs: notification fan-out failed")
	}
}

func strPtr(s string) *string { return &s }
