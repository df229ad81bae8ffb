package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/authz"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/metrics"
)

// AppendEvent adds an annotation to a process timeline. Lifecycle event types
// are rejected with domain.ErrInvalidEventType before the role is checked.
func (s *Service) AppendEvent(ctx context.Context, tc domain.TenantContext, processID uuid.UUID, t domain.EventType, message string) (*domain.Event, error) {
	op, err := authz.AppendOperation(t)
	if err != nil {
		metrics.RecordRejection("event.append", "invalid_event_type")
		return nil, fmt.Errorf("process.AppendEvent: %w", err)
	}
	if err := s.gate(tc, op); err != nil {
		return nil, fmt.Errorf("process.AppendEvent: %w", err)
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("process.AppendEvent: %w: message is required", domain.ErrValidation)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.visible(ctx, tc, processID)
	if err != nil {
		return nil, fmt.Errorf("process.AppendEvent: %w", err)
	}

	ev := s.newEvent(tc, p, t, message, time.Now())
	done := metrics.TrackBackend("event.append")
	err = s.events.Append(ctx, ev)
	done()
	if err != nil {
		return nil, fmt.Errorf("process.AppendEvent: %w", classify(ctx, err))
	}

	metrics.RecordEvent(string(t))
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("process_id", p.ID.String()).
		Str("actor_id", tc.UserID.String()).
		Str("event_type", string(t)).
		Msg("event appended")

	return ev, nil
}

// ListEvents returns the timeline of a visible process, newest first.
func (s *Service) ListEvents(ctx context.Context, tc domain.TenantContext, processID uuid.UUID) ([]*domain.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.visible(ctx, tc, processID); err != nil {
		return nil, fmt.Errorf("process.ListEvents: %w", err)
	}

	events, err := s.events.ListByProcess(ctx, tc.TenantID, processID)
	if err != nil {
		return nil, fmt.Errorf("process.ListEvents: %w", classify(ctx, err))
	}
	return events, nil
}
