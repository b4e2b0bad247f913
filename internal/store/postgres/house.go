package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/homeops/internal/domain"
)

type HouseRepo struct {
	pool *pgxpool.Pool
}

func NewHouseRepo(pool *pgxpool.Pool) *HouseRepo {
	return &HouseRepo{pool: pool}
}

func (r *HouseRepo) GetByID(ctx context.Context, id int64) (*domain.House, error) {
	var h domain.House

	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM houses WHERE id = $1`,
		id,
	).Scan(&h.ID, &h.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("houseRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("houseRepo.GetByID: %w", err)
	}

	return &h, nil
}

func (r *HouseRepo) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM houses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("houseRepo.ListIDs: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("houseRepo.ListIDs: %w", err)
	}

	return ids, nil
}
