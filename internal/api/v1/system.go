package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/sgi/internal/store/postgres"
)

type SchemaStatusOutput struct {
	Body *postgres.SchemaStatus
}

// RegisterSystemRoutes registers the unauthenticated schema check used by
// operators to check that migrations ran.
func RegisterSystemRoutes(api huma.API, checker SchemaChecker) {
	huma.Register(api, huma.Operation{
		OperationID: "get-schema-status",
		Method:      http.MethodGet,
		Path:        "/system/schema",
		Summary:     "Report missing database relations",
		Tags:        []string{"System"},
	}, func(ctx context.Context, _ *struct{}) (*SchemaStatusOutput, error) {
		status, err := checker.SchemaStatus(ctx)
		if err != nil {
			return nil, apiError("get-schema-status", err)
		}

		return &SchemaStatusOutput{Body: status}, nil
	})
}
