package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/server/middleware"
)

type CreateOrganizationInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"255" doc:"Organization name"`
		Slug string `json:"slug" minLength:"1" maxLength:"63" doc:"URL-safe slug (lowercase alphanumeric with hyphens)"`
	}
}

type CreateOrganizationOutput struct {
	Body *domain.TenantContext
}

type GetTenantBySlugInput struct {
	Slug string `path:"slug" maxLength:"63" doc:"Organization slug"`
}

type PublicTenant struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type GetTenantBySlugOutput struct {
	Body PublicTenant
}

// RegisterPublicTenantRoutes registers the invite-link lookup, which needs no
// authentication and exposes only name and slug.
func RegisterPublicTenantRoutes(api huma.API, dir TenantDirectory) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-by-slug",
		Method:      http.MethodGet,
		Path:        "/tenants/by-slug/{slug}",
		Summary:     "Look up an organization by slug",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantBySlugInput) (*GetTenantBySlugOutput, error) {
		t, err := dir.ResolveTenantBySlug(ctx, input.Slug)
		if err != nil {
			return nil, apiError("get-tenant-by-slug", err)
		}

		return &GetTenantBySlugOutput{Body: PublicTenant{Name: t.Name, Slug: t.Slug}}, nil
	})
}

// RegisterOrganizationRoutes registers organization signup for signed-in users.
func RegisterOrganizationRoutes(api huma.API, dir TenantDirectory) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-organization",
		Method:        http.MethodPost,
		Path:          "/organizations",
		Summary:       "Create an organization owned by the caller",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateOrganizationInput) (*CreateOrganizationOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		tc, err := dir.CreateOrganization(ctx, userID, input.Body.Name, input.Body.Slug)
		if err != nil {
			return nil, apiError("create-organization", err)
		}

		return &CreateOrganizationOutput{Body: tc}, nil
	})
}
