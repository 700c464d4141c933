package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure. It deliberately does not
	// distinguish an unknown login from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked indicates a refresh token that has been revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrPermissionDenied indicates the principal lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUserNotFound is only surfaced in authenticated administrative
	// contexts, never during login.
	ErrUserNotFound = errors.New("user not found")
)

// AccountLockedError rejects authentication while a lockout is in effect.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	if e.Until.IsZero() {
		return "account locked"
	}
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// TokenReason classifies access token validation failures.
type TokenReason string

const (
	TokenMalformed TokenReason = "malformed"
	TokenExpired   TokenReason = "expired"
	TokenBadSign   TokenReason = "bad_signature"
	TokenWrongType TokenReason = "unsupported_type"
	TokenBadClaims TokenReason = "missing_claims"
)

// InvalidTokenError reports why an access token was rejected.
type InvalidTokenError struct {
	Reason TokenReason
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + string(e.Reason)
}
