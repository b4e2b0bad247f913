package v1

import (
	"context"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/jobs"
	"github.com/gosuda/homeops/internal/scheduler"
)

// DataStore abstracts the control database for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Houses() domain.HouseRepository
	Ping(ctx context.Context) error
}

// Provisioner creates and bootstraps house databases.
// *tenant.Provisioner satisfies this interface.
type Provisioner interface {
	Provision(ctx context.Context, houseID int64) error
}

// PoolStats reports how many house pools are open.
// *tenant.Registry satisfies this interface.
type PoolStats interface {
	Len() int
}

// JobScheduler triggers jobs and exposes their state.
// *scheduler.Scheduler satisfies this interface.
type JobScheduler interface {
	TriggerHouses(ctx context.Context, name jobs.Name, houseIDs []int64) (*jobs.Report, error)
	Last(name jobs.Name) (*jobs.Report, bool)
	Statuses() []scheduler.Status
}
