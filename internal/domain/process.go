package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ProcessStatus string

const (
	ProcessStatusCadastro  ProcessStatus = "cadastro"
	ProcessStatusTriagem   ProcessStatus = "triagem"
	ProcessStatusAnalise   ProcessStatus = "analise"
	ProcessStatusConcluido ProcessStatus = "concluido"
)

// stage orders the lifecycle; zero means unknown.
var stage = map[ProcessStatus]int{
	ProcessStatusCadastro:  1,
	ProcessStatusTriagem:   2,
	ProcessStatusAnalise:   3,
	ProcessStatusConcluido: 4,
}

var statusLabels = map[ProcessStatus]string{
	ProcessStatusCadastro:  "Cadastro",
	ProcessStatusTriagem:   "Triagem",
	ProcessStatusAnalise:   "Análise",
	ProcessStatusConcluido: "Concluído",
}

// ProcessStatuses returns the lifecycle stages in order.
func ProcessStatuses() []ProcessStatus {
	return []ProcessStatus{
		ProcessStatusCadastro,
		ProcessStatusTriagem,
		ProcessStatusAnalise,
		ProcessStatusConcluido,
	}
}

func (s ProcessStatus) Valid() bool {
	return stage[s] != 0
}

// Terminal reports whether no transition may leave s.
func (s ProcessStatus) Terminal() bool {
	return s == ProcessStatusConcluido
}

// Label is the human-readable stage name used in timeline messages.
func (s ProcessStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// CanTransition checks if a process may move from s to the target status.
// Only strictly forward moves are allowed; intermediate stages may be skipped
// (cadastro->concluido is valid) and nothing leaves concluido.
func (s ProcessStatus) CanTransition(to ProcessStatus) bool {
	from, target := stage[s], stage[to]
	if from == 0 || target == 0 || s.Terminal() {
		return false
	}
	return target > from
}

type Process struct {
	ID             uuid.UUID     `json:"id"`
	TenantID       uuid.UUID     `json:"tenant_id"`
	Title          string        `json:"title"`
	Protocol       string        `json:"protocol"`
	Status         ProcessStatus `json:"status"`
	ClientName     string        `json:"client_name,omitempty"`
	ClientDocument string        `json:"client_document,omitempty"`
	ClientContact  string        `json:"client_contact,omitempty"`
	Assignee       *uuid.UUID    `json:"assignee,omitempty"`       // responsible staff member
	ClientUserID   *uuid.UUID    `json:"client_user_id,omitempty"` // client member allowed to read it
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Version        int64         `json:"version"` // bumped on every stored write
}

// FormatProtocol renders a protocol code, e.g. SGI-2026-001.
func FormatProtocol(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}

// ProcessFilter narrows reads to the processes a caller may see. A nil
// ClientUserID means every process of the tenant.
type ProcessFilter struct {
	ClientUserID *uuid.UUID
}

// Allows reports whether p passes the filter.
func (f ProcessFilter) Allows(p *Process) bool {
	if f.ClientUserID == nil {
		return true
	}
	return p.ClientUserID != nil && *p.ClientUserID == *f.ClientUserID
}

type ProcessRepository interface {
	// CreateWithEvent stores p and its registro event in one transaction. The
	// repository allocates p.Protocol from the tenant's yearly counter using
	// prefix.
	CreateWithEvent(ctx context.Context, p *Process, prefix string, ev *Event) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Process, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ProcessFilter) ([]*Process, error)

	// UpdateStatusWithEvent persists p.Status and p.UpdatedAt only if the stored
	// status still equals from, and appends ev in the same transaction. A
	// status that changed underneath returns ErrConflict. p.Version is
	// advanced on success.
	UpdateStatusWithEvent(ctx context.Context, p *Process, from ProcessStatus, ev *Event) error

	// UpdateWithEvent persists the editable fields of p and appends ev in the
	// same transaction. Tenant, protocol and status are never written. The
	// write only applies while the stored version equals p.Version; a process
	// written underneath returns ErrConflict. p.Version is advanced on success.
	UpdateWithEvent(ctx context.Context, p *Process, ev *Event) error

	// Delete removes the process and, by cascade, all of its events.
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	CountByStatus(ctx context.Context, tenantID uuid.UUID, filter ProcessFilter) (map[ProcessStatus]int, error)
}
