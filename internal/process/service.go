// Package process implements the process lifecycle, its event timeline and the
// per-tenant statistics derived from it. Every operation takes the caller's
// TenantContext explicitly and is checked against the authorization gate
// before touching the store.
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/authz"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/metrics"
)

const DefaultProtocolPrefix = "SGI"

type Service struct {
	processes domain.ProcessRepository
	events    domain.EventRepository
	members   domain.MembershipRepository
	prefix    string
	timeout   time.Duration
}

// NewService creates a process service. timeout bounds every backend call; a
// zero timeout leaves the caller's deadline in charge.
func NewService(processes domain.ProcessRepository, events domain.EventRepository, members domain.MembershipRepository, prefix string, timeout time.Duration) *Service {
	if prefix == "" {
		prefix = DefaultProtocolPrefix
	}
	return &Service{
		processes: processes,
		events:    events,
		members:   members,
		prefix:    strings.ToUpper(prefix),
		timeout:   timeout,
	}
}

type CreateInput struct {
	Title          string
	ClientName     string
	ClientDocument string
	ClientContact  string
	Assignee       *uuid.UUID
	ClientUserID   *uuid.UUID
}

// Patch is a partial update. Nil fields are left untouched; the Clear flags
// unset the optional references.
type Patch struct {
	Title           *string
	ClientName      *string
	ClientDocument  *string
	ClientContact   *string
	Assignee        *uuid.UUID
	ClearAssignee   bool
	ClientUserID    *uuid.UUID
	ClearClientUser bool
}

func (s *Service) Create(ctx context.Context, tc domain.TenantContext, in CreateInput) (*domain.Process, error) {
	if err := s.gate(tc, authz.OpCreateProcess); err != nil {
		return nil, fmt.Errorf("process.Create: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("process.Create: %w: title is required", domain.ErrValidation)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.validateParticipants(ctx, tc.TenantID, in.Assignee, in.ClientUserID); err != nil {
		return nil, fmt.Errorf("process.Create: %w", err)
	}

	now := time.Now()
	p := &domain.Process{
		ID:             uuid.New(),
		TenantID:       tc.TenantID,
		Title:          title,
		Status:         domain.ProcessStatusCadastro,
		ClientName:     strings.TrimSpace(in.ClientName),
		ClientDocument: strings.TrimSpace(in.ClientDocument),
		ClientContact:  strings.TrimSpace(in.ClientContact),
		Assignee:       in.Assignee,
		ClientUserID:   in.ClientUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ev := s.newEvent(tc, p, domain.EventRegistro, createdMessage(title), now)

	done := metrics.TrackBackend("process.create")
	err := s.processes.CreateWithEvent(ctx, p, s.prefix, ev)
	done()
	if err != nil {
		return nil, fmt.Errorf("process.Create: %w", classify(ctx, err))
	}

	metrics.RecordProcessCreated()
	metrics.RecordEvent(string(domain.EventRegistro))
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("process_id", p.ID.String()).
		Str("actor_id", tc.UserID.String()).
		Str("protocol", p.Protocol).
		Msg("process created")

	return p, nil
}

// UpdateStatus moves a process forward in its lifecycle and records one
// status_change event with it. A concurrent transition that changed the status
// first makes this call fail with domain.ErrConflict.
func (s *Service) UpdateStatus(ctx context.Context, tc domain.TenantContext, id uuid.UUID, to domain.ProcessStatus) (*domain.Process, error) {
	if err := s.gate(tc, authz.OpTransitionStatus); err != nil {
		return nil, fmt.Errorf("process.UpdateStatus: %w", err)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("process.UpdateStatus: %w: unknown status %q", domain.ErrValidation, to)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.processes.GetByID(ctx, tc.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("process.UpdateStatus: %w", classify(ctx, err))
	}

	from := p.Status
	if !from.CanTransition(to) {
		metrics.RecordRejection(string(authz.OpTransitionStatus), "invalid_transition")
		return nil, fmt.Errorf("process.UpdateStatus: %s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	now := time.Now()
	p.Status = to
	p.UpdatedAt = now
	ev := s.newEvent(tc, p, domain.EventStatusChange, statusMessage(to), now)

	done := metrics.TrackBackend("process.update_status")
	err = s.processes.UpdateStatusWithEvent(ctx, p, from, ev)
	done()
	if err != nil {
		return nil, fmt.Errorf("process.UpdateStatus: %w", classify(ctx, err))
	}

	metrics.RecordTransition(string(from), string(to))
	metrics.RecordEvent(string(domain.EventStatusChange))
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("process_id", p.ID.String()).
		Str("actor_id", tc.UserID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("process status changed")

	return p, nil
}

// UpdateFields applies a partial update. Status and tenant are never touched
// here. A patch that changes nothing returns the process as is and records no
// event.
func (s *Service) UpdateFields(ctx context.Context, tc domain.TenantContext, id uuid.UUID, patch Patch) (*domain.Process, error) {
	if err := s.gate(tc, authz.OpEditProcess); err != nil {
		return nil, fmt.Errorf("process.UpdateFields: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.processes.GetByID(ctx, tc.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("process.UpdateFields: %w", classify(ctx, err))
	}

	var changed []string
	setText := func(dst *string, src *string, label string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = append(changed, label)
		}
	}

	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("process.UpdateFields: %w: title cannot be empty", domain.ErrValidation)
	}
	setText(&p.Title, patch.Title, "título")
	setText(&p.ClientName, patch.ClientName, "nome do cliente")
	setText(&p.ClientDocument, patch.ClientDocument, "documento do cliente")
	setText(&p.ClientContact, patch.ClientContact, "contato do cliente")

	assigneeChanged := false
	switch {
	case patch.ClearAssignee:
		assigneeChanged = p.Assignee != nil
		p.Assignee = nil
	case patch.Assignee != nil:
		assigneeChanged = p.Assignee == nil || *p.Assignee != *patch.Assignee
		p.Assignee = patch.Assignee
	}

	var newClient *uuid.UUID
	switch {
	case patch.ClearClientUser:
		if p.ClientUserID != nil {
			changed = append(changed, "cliente vinculado")
		}
		p.ClientUserID = nil
	case patch.ClientUserID != nil:
		if p.ClientUserID == nil || *p.ClientUserID != *patch.ClientUserID {
			changed = append(changed, "cliente vinculado")
			newClient = patch.ClientUserID
		}
		p.ClientUserID = patch.ClientUserID
	}

	if !assigneeChanged && len(changed) == 0 {
		return p, nil
	}

	var newAssignee *uuid.UUID
	if assigneeChanged {
		newAssignee = p.Assignee
	}
	if err := s.validateParticipants(ctx, tc.TenantID, newAssignee, newClient); err != nil {
		return nil, fmt.Errorf("process.UpdateFields: %w", err)
	}

	now := time.Now()
	p.UpdatedAt = now
	var ev *domain.Event
	if assigneeChanged {
		ev = s.newEvent(tc, p, domain.EventAtribuicao, assignmentMessage(p.Assignee), now)
	} else {
		ev = s.newEvent(tc, p, domain.EventObservacao, fieldsMessage(changed), now)
	}

	done := metrics.TrackBackend("process.update_fields")
	err = s.processes.UpdateWithEvent(ctx, p, ev)
	done()
	if err != nil {
		return nil, fmt.Errorf("process.UpdateFields: %w", classify(ctx, err))
	}

	metrics.RecordEvent(string(ev.Type))
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("process_id", p.ID.String()).
		Str("actor_id", tc.UserID.String()).
		Str("event_type", string(ev.Type)).
		Msg("process updated")

	return p, nil
}

// Delete hard-removes a process together with its timeline.
func (s *Service) Delete(ctx context.Context, tc domain.TenantContext, id uuid.UUID) error {
	if err := s.gate(tc, authz.OpDeleteProcess); err != nil {
		return fmt.Errorf("process.Delete: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	done := metrics.TrackBackend("process.delete")
	err := s.processes.Delete(ctx, tc.TenantID, id)
	done()
	if err != nil {
		return fmt.Errorf("process.Delete: %w", classify(ctx, err))
	}

	metrics.RecordProcessDeleted()
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("process_id", id.String()).
		Str("actor_id", tc.UserID.String()).
		Msg("process deleted")

	return nil
}

// Get returns a process visible to the caller. Processes outside the caller's
// read scope are reported as domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, tc domain.TenantContext, id uuid.UUID) (*domain.Process, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.visible(ctx, tc, id)
	if err != nil {
		return nil, fmt.Errorf("process.Get: %w", err)
	}
	return p, nil
}

// List returns the processes visible to the caller, newest first.
func (s *Service) List(ctx context.Context, tc domain.TenantContext) ([]*domain.Process, error) {
	filter, err := s.readFilter(tc)
	if err != nil {
		return nil, fmt.Errorf("process.List: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	processes, err := s.processes.List(ctx, tc.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("process.List: %w", classify(ctx, err))
	}
	return processes, nil
}

func (s *Service) newEvent(tc domain.TenantContext, p *domain.Process, t domain.EventType, msg string, at time.Time) *domain.Event {
	actor := tc.UserID
	return &domain.Event{
		ID:        uuid.New(),
		TenantID:  p.TenantID,
		ProcessID: p.ID,
		Type:      t,
		Message:   msg,
		AuthorID:  &actor,
		CreatedAt: at,
	}
}

// visible loads a process and applies the caller's read filter.
func (s *Service) visible(ctx context.Context, tc domain.TenantContext, id uuid.UUID) (*domain.Process, error) {
	filter, err := s.readFilter(tc)
	if err != nil {
		return nil, err
	}
	p, err := s.processes.GetByID(ctx, tc.TenantID, id)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if !filter.Allows(p) {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) readFilter(tc domain.TenantContext) (domain.ProcessFilter, error) {
	filter, err := authz.ReadFilter(tc)
	if err != nil {
		metrics.RecordRejection(string(authz.OpReadProcess), "unauthorized")
		return domain.ProcessFilter{}, err
	}
	return filter, nil
}

func (s *Service) gate(tc domain.TenantContext, op authz.Operation) error {
	if err := authz.Require(tc.Role, op); err != nil {
		metrics.RecordRejection(string(op), "unauthorized")
		log.Debug().
			Str("tenant_id", tc.TenantID.String()).
			Str("actor_id", tc.UserID.String()).
			Str("role", string(tc.Role)).
			Str("operation", string(op)).
			Msg("operation denied")
		return err
	}
	return nil
}

// validateParticipants checks that an assignee is a non-client member and a
// linked client user is a client member of the tenant.
func (s *Service) validateParticipants(ctx context.Context, tenantID uuid.UUID, assignee, clientUser *uuid.UUID) error {
	if assignee != nil {
		m, err := s.members.Get(ctx, tenantID, *assignee)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("%w: assignee is not a member of the organization", domain.ErrValidation)
		case err != nil:
			return classify(ctx, err)
		case m.Role == domain.RoleClient:
			return fmt.Errorf("%w: a client cannot be assigned as responsible", domain.ErrValidation)
		}
	}
	if clientUser != nil {
		m, err := s.members.Get(ctx, tenantID, *clientUser)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("%w: client user is not a member of the organization", domain.ErrValidation)
		case err != nil:
			return classify(ctx, err)
		case m.Role != domain.RoleClient:
			return fmt.Errorf("%w: linked user must have the client role", domain.ErrValidation)
		}
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify turns an expired deadline into domain.ErrTimeout so callers can
// tell a slow backend from a failed one.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}
