package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/shared"
)

// Status enumerates user account states.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusLocked    Status = "LOCKED"
	StatusSuspended Status = "SUSPENDED"
)

// User is the credential record owned by this package. Soft-deleted rows
// (DeletedAt set) are invisible to every read path.
type User struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Username       string
	Email          string
	PasswordHash   string
	FullName       string
	MFAEnabled     bool
	MFASecret      string
	Status         Status
	FailedAttempts int
	LockedUntil    *time.Time
	LastAccessAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// RefreshToken is one issued refresh token. Only the SHA-256 hash of the raw
// value is ever stored. A token is redeemable iff !Revoked and now < ExpiresAt.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// LockoutPolicy is the pure decision logic over failure counters. The
// PostgreSQL repository applies the same transitions in a single atomic
// UPDATE; these functions define the semantics and drive the in-memory fakes.
type LockoutPolicy struct {
	Threshold    int
	LockDuration time.Duration
}

// DefaultLockoutPolicy matches production defaults: 5 attempts, 30 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
}

// AllowAttempt decides whether an authentication attempt may proceed. It runs
// before credential verification so a locked account reveals nothing about
// password correctness. A LOCKED account with no expiry (administrative lock)
// stays locked until explicitly unlocked; one whose expiry has passed may
// attempt again and is unlocked lazily on success.
func (p LockoutPolicy) AllowAttempt(u *User, now time.Time) error {
	if u.Status != StatusLocked {
		return nil
	}
	if u.LockedUntil == nil {
		return &shared.AccountLockedError{}
	}
	if now.Before(*u.LockedUntil) {
		return &shared.AccountLockedError{Until: *u.LockedUntil}
	}
	return nil
}

// ApplyFailure records a failed verification: increments the counter and, at
// the threshold, transitions to LOCKED with an expiry.
func (p LockoutPolicy) ApplyFailure(u *User, now time.Time) {
	u.FailedAttempts++
	if u.FailedAttempts >= p.Threshold {
		u.Status = StatusLocked
		until := now.Add(p.LockDuration)
		u.LockedUntil = &until
	}
	u.UpdatedAt = now
}

// ApplySuccess records a successful verification: resets the counter, lazily
// unlocks an expired lock, and stamps last access.
func (p LockoutPolicy) ApplySuccess(u *User, now time.Time) {
	u.FailedAttempts = 0
	if u.Status == StatusLocked && u.LockedUntil != nil && !now.Before(*u.LockedUntil) {
		u.Status = StatusActive
		u.LockedUntil = nil
	}
	access := now
	u.LastAccessAt = &access
	u.UpdatedAt = now
}
