package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/domain"
)

// SQLSTATE duplicate_database.
const codeDuplicateDatabase = "42P04"

// AdminConn is a short-lived connection to the maintenance database.
type AdminConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// AdminConnector opens an AdminConn.
type AdminConnector func(ctx context.Context) (AdminConn, error)

// NewPgxAdminConnector connects with pgx.Connect on every call.
func NewPgxAdminConnector(dsn string) AdminConnector {
	return func(ctx context.Context) (AdminConn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Provisioner creates house databases and applies their schema.
type Provisioner struct {
	admin      AdminConnector
	registry   *Registry
	dbName     func(houseID int64) string
	schemaPath string
}

func NewProvisioner(admin AdminConnector, registry *Registry, dbName func(houseID int64) string, schemaPath string) *Provisioner {
	return &Provisioner{
		admin:      admin,
		registry:   registry,
		dbName:     dbName,
		schemaPath: schemaPath,
	}
}

// Provision creates the database for houseID, registers its pool and
// bootstraps the schema. An existing database yields domain.ErrConflict and
// leaves it untouched. When bootstrap fails the pool is evicted and the
// error wraps domain.ErrBootstrap.
func (p *Provisioner) Provision(ctx context.Context, houseID int64) error {
	name := p.dbName(houseID)

	if err := p.createDatabase(ctx, name); err != nil {
		provisionCounter.WithLabelValues(outcomeOf(err)).Inc()
		return fmt.Errorf("tenant.Provisioner.Provision(%d): %w", houseID, err)
	}

	pool, err := p.registry.Pool(ctx, houseID)
	if err != nil {
		provisionCounter.WithLabelValues(outcomeOf(err)).Inc()
		return fmt.Errorf("tenant.Provisioner.Provision(%d): %w", houseID, err)
	}

	if err := Bootstrap(ctx, pool, p.schemaPath); err != nil {
		p.registry.Evict(houseID)
		provisionCounter.WithLabelValues(outcomeOf(err)).Inc()
		return fmt.Errorf("tenant.Provisioner.Provision(%d): %w", houseID, err)
	}

	provisionCounter.WithLabelValues("ok").Inc()
	log.Info().Int64("house_id", houseID).Str("database", name).Msg("tenant: house provisioned")

	return nil
}

func (p *Provisioner) createDatabase(ctx context.Context, name string) error {
	conn, err := p.admin(ctx)
	if err != nil {
		return fmt.Errorf("admin connect: %w: %w", domain.ErrUnavailable, err)
	}
	defer func() {
		if closeErr := conn.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Msg("tenant: closing admin connection")
		}
	}()

	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == codeDuplicateDatabase:
		return fmt.Errorf("database %q already exists: %w", name, domain.ErrConflict)
	case errors.As(err, &pgErr):
		return fmt.Errorf("create database %q: %w", name, err)
	default:
		return fmt.Errorf("create database %q: %w: %w", name, domain.ErrUnavailable, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrBootstrap):
		return "bootstrap_failed"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
