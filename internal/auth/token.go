package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/shared"
)

const tokenTypeAccess = "access"

// TokenConfig carries the signing material and lifetimes. It is built once at
// process start from configuration and passed explicitly so tests can run
// with alternate keys.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims are the signed contents of an access token. Roles and Permissions
// are the snapshot computed at mint time.
type Claims struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	TenantID    string   `json:"tenant_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// Tokens mints and validates access tokens and generates opaque refresh
// token values. The short access lifetime makes the stateless signature
// check acceptable: revocation happens through the refresh store instead.
type Tokens struct {
	cfg TokenConfig
}

// NewTokens constructs the issuer/validator.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret must be provided")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Tokens{cfg: cfg}, nil
}

// IssueAccess signs an HS256 access token for the user with the resolved
// role and permission snapshot.
func (t *Tokens) IssueAccess(u *User, roles, permissions []string, now time.Time) (string, error) {
	now = now.UTC()
	claims := Claims{
		Username:    u.Username,
		Email:       u.Email,
		TenantID:    u.TenantID.String(),
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccess verifies signature, expiry, token type and claim
// completeness. Every failure is terminal and carries a distinguishing
// reason; there is no best-effort fallback.
func (t *Tokens) ValidateAccess(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, &shared.InvalidTokenError{Reason: shared.TokenBadSign}
		}
		return t.cfg.Secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &shared.InvalidTokenError{Reason: shared.TokenExpired}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, &shared.InvalidTokenError{Reason: shared.TokenBadSign}
		default:
			return nil, &shared.InvalidTokenError{Reason: shared.TokenMalformed}
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, &shared.InvalidTokenError{Reason: shared.TokenMalformed}
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, &shared.InvalidTokenError{Reason: shared.TokenWrongType}
	}
	if claims.Subject == "" || claims.TenantID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, &shared.InvalidTokenError{Reason: shared.TokenBadClaims}
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, &shared.InvalidTokenError{Reason: shared.TokenBadClaims}
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, &shared.InvalidTokenError{Reason: shared.TokenBadClaims}
	}
	return claims, nil
}

// NewRefreshValue generates an opaque 256-bit refresh token. It carries no
// claims; its only use is redemption against the server-side store.
func (t *Tokens) NewRefreshValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AccessTTL exposes the configured access token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.cfg.AccessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (t *Tokens) RefreshTTL() time.Duration { return t.cfg.RefreshTTL }

// HashRefreshValue derives the storable one-way hash of a raw refresh token.
func HashRefreshValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
