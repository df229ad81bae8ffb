package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/sgi/internal/auth"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/server/middleware"
)

type RegisterInput struct {
	Body struct {
		TenantSlug string `json:"tenant_slug" minLength:"1" maxLength:"63" doc:"Slug of the organization that sent the invite link"`
		Email      string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password   string `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
		Name       string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	}
}

type SignInOutput struct {
	Body *auth.SignIn
}

type LoginInput struct {
	Body struct {
		Email      string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password   string `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
		TenantSlug string `json:"tenant_slug,omitempty" maxLength:"63" doc:"Organization to sign in to; optional when the user has one membership"`
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type RefreshOutput struct {
	Body *auth.Tokens
}

type SelectTenantInput struct {
	Body struct {
		TenantSlug string `json:"tenant_slug" minLength:"1" maxLength:"63" doc:"Organization slug"`
	}
}

type MeOutput struct {
	Body struct {
		User    *domain.User            `json:"user"`
		Tenant  *domain.TenantContext   `json:"tenant,omitempty"`
		Tenants []*domain.TenantContext `json:"tenants"`
	}
}

// RegisterAuthRoutes registers the unauthenticated auth endpoints.
func RegisterAuthRoutes(api huma.API, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Register through an organization invite link",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RegisterInput) (*SignInOutput, error) {
		_, tc, err := authSvc.Register(ctx, input.Body.TenantSlug, input.Body.Email, input.Body.Password, input.Body.Name)
		if err != nil {
			return nil, apiError("register", err)
		}

		signIn, err := authSvc.Login(ctx, input.Body.Email, input.Body.Password, tc.TenantSlug)
		if err != nil {
			return nil, apiError("register: login", err)
		}

		return &SignInOutput{Body: signIn}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Sign in with email and password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*SignInOutput, error) {
		signIn, err := authSvc.Login(ctx, input.Body.Email, input.Body.Password, input.Body.TenantSlug)
		if err != nil {
			return nil, apiError("login", err)
		}

		return &SignInOutput{Body: signIn}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
		tokens, err := authSvc.RefreshToken(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, apiError("refresh-token", err)
		}

		return &RefreshOutput{Body: tokens}, nil
	})
}

// RegisterSessionRoutes registers the endpoints that need a signed-in user
// but no selected tenant.
func RegisterSessionRoutes(api huma.API, authSvc AuthService, dir TenantDirectory) {
	huma.Register(api, huma.Operation{
		OperationID: "select-tenant",
		Method:      http.MethodPost,
		Path:        "/auth/select-tenant",
		Summary:     "Select the organization to work in",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *SelectTenantInput) (*SignInOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		signIn, err := authSvc.SelectTenant(ctx, userID, input.Body.TenantSlug)
		if err != nil {
			return nil, apiError("select-tenant", err)
		}

		return &SignInOutput{Body: signIn}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Sign out everywhere",
		Tags:          []string{"Auth"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		authSvc.Logout(ctx, userID)
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and organizations",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*MeOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		user, err := authSvc.GetUser(ctx, userID)
		if err != nil {
			return nil, apiError("get-me", err)
		}

		contexts, err := dir.ListContexts(ctx, userID)
		if err != nil {
			return nil, apiError("get-me: contexts", err)
		}

		out := &MeOutput{}
		out.Body.User = user
		out.Body.Tenants = contexts
		if out.Body.Tenants == nil {
			out.Body.Tenants = []*domain.TenantContext{}
		}
		if tenantID, ok := middleware.TenantIDFromContext(ctx); ok {
			for _, tc := range contexts {
				if tc.TenantID == tenantID {
					out.Body.Tenant = tc
				}
			}
		}
		return out, nil
	})
}
