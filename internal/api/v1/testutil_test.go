package v1_test

import (
	"context"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/jobs"
	"github.com/gosuda/homeops/internal/scheduler"
	"github.com/gosuda/homeops/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject operator/role into context for DoCtx
// ---------------------------------------------------------------------------

func roleCtx(role string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, middleware.ContextKeyOperator, "alice")
	ctx = context.WithValue(ctx, middleware.ContextKeyUserRole, role)
	return ctx
}

func adminCtx() context.Context    { return roleCtx(middleware.RoleAdmin) }
func operatorCtx() context.Context { return roleCtx(middleware.RoleOperator) }
func viewerCtx() context.Context   { return roleCtx(middleware.RoleViewer) }

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	houses   domain.HouseRepository
	pingFunc func(ctx context.Context) error
}

func (m *mockDataStore) Houses() domain.HouseRepository { return m.houses }

func (m *mockDataStore) Ping(ctx context.Context) error {
	return m.pingFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock HouseRepository
// ---------------------------------------------------------------------------

type mockHouseRepo struct {
	getByIDFunc func(ctx context.Context, id int64) (*domain.House, error)
	listIDsFunc func(ctx context.Context) ([]int64, error)
}

func (m *mockHouseRepo) GetByID(ctx context.Context, id int64) (*domain.House, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockHouseRepo) ListIDs(ctx context.Context) ([]int64, error) {
	return m.listIDsFunc(ctx)
}

// knownHouses returns a repo that finds exactly the given house IDs.
func knownHouses(ids ...int64) *mockHouseRepo {
	return &mockHouseRepo{
		getByIDFunc: func(_ context.Context, id int64) (*domain.House, error) {
			for _, known := range ids {
				if known == id {
					return &domain.House{ID: id, Name: "House"}, nil
				}
			}
			return nil, domain.ErrNotFound
		},
	}
}

// ---------------------------------------------------------------------------
// Mock Provisioner
// ---------------------------------------------------------------------------

type mockProvisioner struct {
	provisionFunc func(ctx context.Context, houseID int64) error
}

func (m *mockProvisioner) Provision(ctx context.Context, houseID int64) error {
	return m.provisionFunc(ctx, houseID)
}

// ---------------------------------------------------------------------------
// Mock PoolStats
// ---------------------------------------------------------------------------

type fixedPools int

func (p fixedPools) Len() int { return int(p) }

// ---------------------------------------------------------------------------
// Mock JobScheduler
// ---------------------------------------------------------------------------

type mockScheduler struct {
	triggerFunc  func(ctx context.Context, name jobs.Name, houseIDs []int64) (*jobs.Report, error)
	lastFunc     func(name jobs.Name) (*jobs.Report, bool)
	statusesFunc func() []scheduler.Status
}

func (m *mockScheduler) TriggerHouses(ctx context.Context, name jobs.Name, houseIDs []int64) (*jobs.Report, error) {
	return m.triggerFunc(ctx, name, houseIDs)
}

func (m *mockScheduler) Last(name jobs.Name) (*jobs.Report, bool) {
	return m.lastFunc(name)
}

func (m *mockScheduler) Statuses() []scheduler.Status {
	return m.statusesFunc()
}
