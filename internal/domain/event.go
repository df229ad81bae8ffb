package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRegistro     EventType = "registro"
	EventStatusChange EventType = "status_change"
	EventObservacao   EventType = "observacao"
	EventDocumento    EventType = "documento"
	EventAtribuicao   EventType = "atribuicao"
)

func (t EventType) Valid() bool {
	switch t {
	case EventRegistro, EventStatusChange, EventObservacao, EventDocumento, EventAtribuicao:
		return true
	default:
		return false
	}
}

// Lifecycle reports whether events of this type are produced only as a side
// effect of process creation or status transitions.
func (t EventType) Lifecycle() bool {
	return t == EventRegistro || t == EventStatusChange
}

// Event is an immutable timeline entry. Seq is assigned by the store and
// preserves insertion order when timestamps collide.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	ProcessID uuid.UUID  `json:"process_id"`
	Seq       int64      `json:"seq"`
	Type      EventType  `json:"type"`
	Message   string     `json:"message"`
	AuthorID  *uuid.UUID `json:"author_id,omitempty"` // nil for system events
	CreatedAt time.Time  `json:"created_at"`
}

// EventRepository is append-only: there is no update or delete.
type EventRepository interface {
	Append(ctx context.Context, ev *Event) error
	// ListByProcess returns the timeline newest first.
	ListByProcess(ctx context.Context, tenantID, processID uuid.UUID) ([]*Event, error)
}
