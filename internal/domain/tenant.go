package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeSlug trims and lowercases a tenant slug and checks it is URL-safe.
func NormalizeSlug(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if slug == "" {
		return "", fmt.Errorf("%w: slug is required", ErrValidation)
	}
	if len(slug) > 63 || !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("%w: invalid slug %q", ErrValidation, input)
	}
	return slug, nil
}

// TenantContext is the resolved answer to "who is calling, on behalf of which
// tenant, with what role". It is passed explicitly to every core operation.
type TenantContext struct {
	UserID     uuid.UUID `json:"user_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantSlug string    `json:"tenant_slug"`
	TenantName string    `json:"tenant_name"`
	Role       Role      `json:"role"`
}

type TenantRepository interface {
	// CreateWithOwner stores t together with the owner membership atomically.
	CreateWithOwner(ctx context.Context, t *Tenant, owner *Membership) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
}
