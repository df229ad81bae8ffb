// Package authz is the authorization gate: a static capability table mapping
// (role, operation) to allow/deny. It performs no I/O and holds no state.
package authz

import (
	"fmt"

	"github.com/gosuda/sgi/internal/domain"
)

// Operation names a gated action of the core.
type Operation string

const (
	OpCreateProcess     Operation = "process.create"
	OpEditProcess       Operation = "process.edit"
	OpTransitionStatus  Operation = "process.transition"
	OpDeleteProcess     Operation = "process.delete"
	OpAppendObservation Operation = "event.observacao"
	OpAppendDocument    Operation = "event.documento"
	OpAppendAssignment  Operation = "event.atribuicao"

	// OpReadProcess allows reading processes and timelines at all. Holders of
	// OpReadProcess without OpReadAllProcesses only see processes linked to
	// them as client.
	OpReadProcess      Operation = "process.read"
	OpReadAllProcesses Operation = "process.read_all"

	OpListMembers   Operation = "members.list"
	OpManageMembers Operation = "members.manage"
)

type roleSet map[domain.Role]struct{}

func roles(rs ...domain.Role) roleSet {
	s := make(roleSet, len(rs))
	for _, r := range rs {
		s[r] = struct{}{}
	}
	return s
}

var (
	everyone = roles(domain.RoleOwner, domain.RoleAdmin, domain.RoleStaff, domain.RoleClient)
	team     = roles(domain.RoleOwner, domain.RoleAdmin, domain.RoleStaff)
	managers = roles(domain.RoleOwner, domain.RoleAdmin)
)

var capabilities = map[Operation]roleSet{
	OpCreateProcess:     team,
	OpEditProcess:       team,
	OpTransitionStatus:  team,
	OpDeleteProcess:     managers,
	OpAppendObservation: team,
	OpAppendDocument:    team,
	OpAppendAssignment:  team,
	OpReadProcess:       everyone,
	OpReadAllProcesses:  team,
	OpListMembers:       team,
	OpManageMembers:     managers,
}

// Operations returns every gated operation.
func Operations() []Operation {
	return []Operation{
		OpCreateProcess, OpEditProcess, OpTransitionStatus, OpDeleteProcess,
		OpAppendObservation, OpAppendDocument, OpAppendAssignment,
		OpReadProcess, OpReadAllProcesses, OpListMembers, OpManageMembers,
	}
}

// Can reports whether role may perform op. Unknown roles and operations are
// denied.
func Can(role domain.Role, op Operation) bool {
	allowed, ok := capabilities[op]
	if !ok {
		return false
	}
	_, ok = allowed[role]
	return ok
}

// Require returns a wrapped domain.ErrUnauthorized when role may not perform op.
func Require(role domain.Role, op Operation) error {
	if !Can(role, op) {
		return fmt.Errorf("authz: role %q may not %s: %w", role, op, domain.ErrUnauthorized)
	}
	return nil
}

// AppendOperation maps an event type to the operation gating its direct
// append. Lifecycle types (registro, status_change) and unknown types have no
// such operation and yield domain.ErrInvalidEventType.
func AppendOperation(t domain.EventType) (Operation, error) {
	switch t {
	case domain.EventObservacao:
		return OpAppendObservation, nil
	case domain.EventDocumento:
		return OpAppendDocument, nil
	case domain.EventAtribuicao:
		return OpAppendAssignment, nil
	default:
		return "", fmt.Errorf("authz: event type %q cannot be appended directly: %w", t, domain.ErrInvalidEventType)
	}
}

// ReadFilter returns the process filter that applies to tc, or ErrUnauthorized
// when the role may not read processes at all.
func ReadFilter(tc domain.TenantContext) (domain.ProcessFilter, error) {
	if err := Require(tc.Role, OpReadProcess); err != nil {
		return domain.ProcessFilter{}, err
	}
	if Can(tc.Role, OpReadAllProcesses) {
		return domain.ProcessFilter{}, nil
	}
	userID := tc.UserID
	return domain.ProcessFilter{ClientUserID: &userID}, nil
}
