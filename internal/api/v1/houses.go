package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/server/middleware"
)

type HouseIDInput struct {
	HouseID int64 `path:"houseID" minimum:"1" doc:"House ID"`
}

type GetHouseOutput struct {
	Body *domain.House
}

type ProvisionHouseOutput struct {
	Body struct {
		HouseID int64  `json:"house_id"`
		Status  string `json:"status" enum:"provisioned"`
	}
}

func RegisterHouseRoutes(api huma.API, store DataStore, prov Provisioner) {
	huma.Register(api, huma.Operation{
		OperationID: "get-house",
		Method:      http.MethodGet,
		Path:        "/houses/{houseID}",
		Summary:     "Get a house from the control database",
		Tags:        []string{"Houses"},
	}, func(ctx context.Context, input *HouseIDInput) (*GetHouseOutput, error) {
		house, err := store.Houses().GetByID(ctx, input.HouseID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("house not found")
			}
			return nil, huma.Error500InternalServerError("failed to get house", err)
		}

		return &GetHouseOutput{Body: house}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "provision-house",
		Method:        http.MethodPost,
		Path:          "/houses/{houseID}/provision",
		Summary:       "Create and bootstrap the database of a house",
		Tags:          []string{"Houses"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *HouseIDInput) (*ProvisionHouseOutput, error) {
		if err := requireRole(ctx, middleware.RoleAdmin); err != nil {
			return nil, err
		}

		if _, err := store.Houses().GetByID(ctx, input.HouseID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("house not found")
			}
			return nil, huma.Error500InternalServerError("failed to get house", err)
		}

		err := prov.Provision(ctx, input.HouseID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrConflict):
			return nil, huma.Error409Conflict("house database already exists")
		case errors.Is(err, domain.ErrUnavailable):
			return nil, huma.Error503ServiceUnavailable("database server unavailable")
		default:
			return nil, huma.Error500InternalServerError("failed to provision house", err)
		}

		operator, _ := middleware.OperatorFromContext(ctx)
		log.Info().Int64("house_id", input.HouseID).Str("operator", operator).Msg("api: house provisioned")

		out := &ProvisionHouseOutput{}
		out.Body.HouseID = input.HouseID
		out.Body.Status = "provisioned"
		return out, nil
	})
}
