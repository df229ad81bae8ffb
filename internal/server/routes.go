package server

import (
	"github.com/danielgtaylor/huma/v2"

	v1 "github.com/gosuda/sgi/internal/api/v1"
)

func registerPublicRoutes(api huma.API, deps Deps) {
	v1.RegisterAuthRoutes(api, deps.Auth)
	v1.RegisterPublicTenantRoutes(api, deps.Directory)
	v1.RegisterSystemRoutes(api, deps.Schema)
}

func registerSessionRoutes(api huma.API, deps Deps) {
	v1.RegisterSessionRoutes(api, deps.Auth, deps.Directory)
	v1.RegisterOrganizationRoutes(api, deps.Directory)
}

func registerTenantRoutes(api huma.API, deps Deps) {
	v1.RegisterProcessRoutes(api, deps.Processes)
	v1.RegisterEventRoutes(api, deps.Processes)
	v1.RegisterStatsRoutes(api, deps.Processes)
}

func registerMemberRoutes(api huma.API, deps Deps) {
	v1.RegisterMemberRoutes(api, deps.Directory)
}
