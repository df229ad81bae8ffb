package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of membership roles inside a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

// Roles returns every role, most privileged first.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleStaff, RoleClient}
}

// Valid reports whether r is one of the four defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff, RoleClient:
		return true
	default:
		return false
	}
}

// roleAliases maps historical spellings found in identity-provider claims and
// legacy membership rows onto the closed role set.
var roleAliases = map[string]Role{
	"owner":         RoleOwner,
	"proprietario":  RoleOwner,
	"proprietário":  RoleOwner,
	"dono":          RoleOwner,
	"admin":         RoleAdmin,
	"administrador": RoleAdmin,
	"administrator": RoleAdmin,
	"staff":         RoleStaff,
	"manager":       RoleStaff,
	"gestor":        RoleStaff,
	"equipe":        RoleStaff,
	"funcionario":   RoleStaff,
	"funcionário":   RoleStaff,
	"client":        RoleClient,
	"cliente":       RoleClient,
}

// ParseRole normalizes a free-text role into the closed Role set. It is the
// only place where role spelling is interpreted; everything past the identity
// boundary works with Role values.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := roleAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}
