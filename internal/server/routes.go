package server

import (
	"github.com/danielgtaylor/huma/v2"

	v1 "github.com/gosuda/homeops/internal/api/v1"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterHealthRoutes(api, deps.Store, deps.Pools)
	v1.RegisterHouseRoutes(api, deps.Store, deps.Provisioner)
	v1.RegisterJobRoutes(api, deps.Scheduler)
}
