package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

type ListEventsOutput struct {
	Body []*domain.Event
}

type AppendEventInput struct {
	ID   uuid.UUID `path:"id" doc:"Process ID"`
	Body struct {
		Type    string `json:"type" minLength:"1" doc:"observacao, documento or atribuicao"`
		Message string `json:"message" minLength:"1" maxLength:"4000" doc:"Event message"`
	}
}

type EventOutput struct {
	Body *domain.Event
}

func RegisterEventRoutes(api huma.API, svc ProcessService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-process-events",
		Method:      http.MethodGet,
		Path:        "/processes/{id}/events",
		Summary:     "Process timeline, newest first",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ProcessIDInput) (*ListEventsOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		events, err := svc.ListEvents(ctx, tc, input.ID)
		if err != nil {
			return nil, apiError("list-process-events", err)
		}
		if events == nil {
			events = []*domain.Event{}
		}

		return &ListEventsOutput{Body: events}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-process-event",
		Method:        http.MethodPost,
		Path:          "/processes/{id}/events",
		Summary:       "Add an entry to the process timeline",
		Tags:          []string{"Events"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AppendEventInput) (*EventOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		ev, err := svc.AppendEvent(ctx, tc, input.ID, domain.EventType(input.Body.Type), input.Body.Message)
		if err != nil {
			return nil, apiError("append-process-event", err)
		}

		return &EventOutput{Body: ev}, nil
	})
}
