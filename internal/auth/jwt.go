package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

// Claims holds the JWT token payload. TenantID is empty for tokens issued
// before a tenant was selected.
type Claims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tid,omitempty"`
	UserID    string `json:"uid"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"` // "access" or "refresh"
	// IssuedAtNano is the issue time in nanoseconds; iat alone has second
	// precision, too coarse to order a token against a sign-out.
	IssuedAtNano int64 `json:"iat_ns,omitempty"`
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	issuer = "sgi"
)

// ErrInvalidToken is returned when a JWT cannot be parsed, has expired, or was
// revoked by a sign-out.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// IssueAccessToken creates a signed JWT access token. tenantID may be
// uuid.Nil.
func IssueAccessToken(secret string, tenantID, userID uuid.UUID, role domain.Role, ttl time.Duration) (string, error) {
	return issueToken(secret, tenantID, userID, role, tokenTypeAccess, ttl)
}

// IssueRefreshToken creates a signed JWT refresh token.
func IssueRefreshToken(secret string, tenantID, userID uuid.UUID, role domain.Role, ttl time.Duration) (string, error) {
	return issueToken(secret, tenantID, userID, role, tokenTypeRefresh, ttl)
}

func issueToken(secret string, tenantID, userID uuid.UUID, role domain.Role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		UserID:       userID.String(),
		Role:         string(role),
		TokenType:    tokenType,
		IssuedAtNano: now.UnixNano(),
	}
	if tenantID != uuid.Nil {
		claims.TenantID = tenantID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.issueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer), jwt.WithIssuedAt())
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Identity is the parsed subject of a token.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID // uuid.Nil when no tenant is bound
	Role     domain.Role
	IssuedAt time.Time
	Refresh  bool
}

// Identity parses the ids carried by the claims. Role spellings are
// normalized here so nothing downstream compares free text.
func (c *Claims) Identity() (Identity, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("auth.Claims.Identity: user id: %w", ErrInvalidToken)
	}

	id := Identity{UserID: userID, Refresh: c.TokenType == tokenTypeRefresh}
	if c.TenantID != "" {
		if id.TenantID, err = uuid.Parse(c.TenantID); err != nil {
			return Identity{}, fmt.Errorf("auth.Claims.Identity: tenant id: %w", ErrInvalidToken)
		}
	}
	if c.Role != "" {
		if id.Role, err = domain.ParseRole(c.Role); err != nil {
			return Identity{}, fmt.Errorf("auth.Claims.Identity: %w", ErrInvalidToken)
		}
	}
	switch {
	case c.IssuedAtNano > 0:
		id.IssuedAt = time.Unix(0, c.IssuedAtNano)
	case c.IssuedAt != nil:
		id.IssuedAt = c.IssuedAt.Time
	}
	return id, nil
}

// ParseAccessToken validates an access token and returns its identity.
func ParseAccessToken(secret, tokenString string) (Identity, error) {
	claims, err := ValidateToken(secret, tokenString)
	if err != nil {
		return Identity{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return Identity{}, fmt.Errorf("auth.ParseAccessToken: %w", ErrInvalidToken)
	}
	return claims.Identity()
}
