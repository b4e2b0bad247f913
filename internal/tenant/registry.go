package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/gosuda/homeops/internal/domain"
)

// Pool is the subset of *pgxpool.Pool the tenant layer and the stores use.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolFactory opens a connection pool to one house database.
type PoolFactory func(ctx context.Context, houseID int64) (Pool, error)

// NewPgxFactory returns a PoolFactory backed by pgxpool. dsnFor maps a house
// id to its connection string; maxConns caps every house pool.
func NewPgxFactory(dsnFor func(houseID int64) string, maxConns int32) PoolFactory {
	return func(ctx context.Context, houseID int64) (Pool, error) {
		cfg, err := pgxpool.ParseConfig(dsnFor(houseID))
		if err != nil {
			return nil, fmt.Errorf("tenant.pgxFactory: parse config: %w", err)
		}

		cfg.MaxConns = maxConns

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("tenant.pgxFactory: connect: %w: %w", domain.ErrUnavailable, err)
		}

		err = pool.Ping(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("tenant.pgxFactory: ping: %w: %w", domain.ErrUnavailable, err)
		}

		return pool, nil
	}
}

// ErrRegistryClosed is returned by Registry.Pool after Close.
var ErrRegistryClosed = errors.New("tenant registry closed")

// DefaultBuildTimeout bounds one pool construction.
const DefaultBuildTimeout = 30 * time.Second

// Registry maps house ids to their connection pools. A pool is created on
// first use and reused for the lifetime of the process; concurrent first
// callers for the same house share a single construction.
type Registry struct {
	factory      PoolFactory
	buildTimeout time.Duration

	mu     sync.RWMutex
	pools  map[int64]Pool
	closed bool
	flight singleflight.Group
}

func NewRegistry(factory PoolFactory) *Registry {
	return &Registry{
		factory:      factory,
		buildTimeout: DefaultBuildTimeout,
		pools:        make(map[int64]Pool),
	}
}

// SetBuildTimeout changes how long one pool construction may take.
func (r *Registry) SetBuildTimeout(d time.Duration) {
	r.buildTimeout = d
}

// Pool returns the pool for houseID, constructing it if needed. A failed
// construction is not cached, so a later call retries.
//
// The construction is shared by every caller waiting on the house and does
// not inherit any one caller's cancellation; each caller still stops waiting
// when its own ctx is done.
func (r *Registry) Pool(ctx context.Context, houseID int64) (Pool, error) {
	if p, ok, err := r.lookup(houseID); ok || err != nil {
		if err != nil {
			return nil, fmt.Errorf("tenant.Registry.Pool(%d): %w", houseID, err)
		}
		return p, nil
	}

	ch := r.flight.DoChan(strconv.FormatInt(houseID, 10), func() (any, error) {
		// A flight that finished between lookup and DoChan has already stored
		// the pool.
		if p, ok, err := r.lookup(houseID); ok || err != nil {
			return p, err
		}

		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.buildTimeout)
		defer cancel()

		p, err := r.factory(buildCtx, houseID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			p.Close()
			return nil, ErrRegistryClosed
		}
		r.pools[houseID] = p
		r.mu.Unlock()
		poolsOpen.Inc()

		log.Debug().Int64("house_id", houseID).Msg("tenant: pool opened")
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("tenant.Registry.Pool(%d): %w", houseID, res.Err)
		}
		return res.Val.(Pool), nil //nolint:forcetypeassert // only Pool values are stored
	case <-ctx.Done():
		return nil, fmt.Errorf("tenant.Registry.Pool(%d): %w", houseID, ctx.Err())
	}
}

func (r *Registry) lookup(houseID int64) (Pool, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	p, ok := r.pools[houseID]
	return p, ok, nil
}

// Evict closes and forgets the pool for houseID. It is a no-op for unknown houses.
func (r *Registry) Evict(houseID int64) {
	r.mu.Lock()
	p, ok := r.pools[houseID]
	delete(r.pools, houseID)
	r.mu.Unlock()

	if ok {
		p.Close()
		poolsOpen.Dec()
		log.Debug().Int64("house_id", houseID).Msg("tenant: pool evicted")
	}
}

// Len returns the number of open pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// Close closes every pool. Later Pool calls fail with ErrRegistryClosed and
// a construction still in flight closes its pool instead of storing it.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	pools := r.pools
	r.pools = make(map[int64]Pool)
	r.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
	poolsOpen.Sub(float64(len(pools)))
}
