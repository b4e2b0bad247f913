package domain

import (
	"context"
	"strconv"
)

// House is one tenant. Its data lives in a dedicated database.
type House struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DatabaseName derives the tenant database name for a house.
func DatabaseName(prefix string, houseID int64) string {
	return prefix + strconv.FormatInt(houseID, 10)
}

// HouseRepository reads the houses known to the control database.
type HouseRepository interface {
	GetByID(ctx context.Context, id int64) (*House, error)
	ListIDs(ctx context.Context) ([]int64, error)
}
