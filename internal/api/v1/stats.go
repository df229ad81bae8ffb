package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/sgi/internal/domain"
)

type StatsOutput struct {
	Body domain.Stats
}

func RegisterStatsRoutes(api huma.API, svc ProcessService) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Process counts per status",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		stats, err := svc.Stats(ctx, tc)
		if err != nil {
			return nil, apiError("get-stats", err)
		}

		return &StatsOutput{Body: stats}, nil
	})
}
