package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type HealthOutput struct {
	Body struct {
		Status     string `json:"status" enum:"ok"`
		HousePools int    `json:"house_pools" doc:"Open house connection pools"`
	}
}

func RegisterHealthRoutes(api huma.API, store DataStore, pools PoolStats) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Check control database connectivity",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		if err := store.Ping(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("control database unreachable", err)
		}

		out := &HealthOutput{}
		out.Body.Status = "ok"
		out.Body.HousePools = pools.Len()
		return out, nil
	})
}
