package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/domain"
)

// Stats counts the caller's visible processes by status. An unprovisioned or
// unreachable backend yields zero counts instead of an error.
func (s *Service) Stats(ctx context.Context, tc domain.TenantContext) (domain.Stats, error) {
	filter, err := s.readFilter(tc)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("process.Stats: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	counts, err := s.processes.CountByStatus(ctx, tc.TenantID, filter)
	if errors.Is(err, domain.ErrBackendUnavailable) {
		log.Warn().Err(err).
			Str("tenant_id", tc.TenantID.String()).
			Msg("stats unavailable, reporting zero counts")
		return domain.Stats{}, nil
	}
	if err != nil {
		return domain.Stats{}, fmt.Errorf("process.Stats: %w", classify(ctx, err))
	}
	return domain.StatsFromCounts(counts), nil
}
