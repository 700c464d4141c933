package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence for the credential store and the refresh
// token store. Implementations must make RecordFailure and Rotate atomic:
// two racing failure recordings may not both decide the threshold, and only
// one of two racing rotations may win.
type Repository interface {
	FindByLogin(ctx context.Context, login string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// RecordFailure atomically increments the failure counter, applying the
	// lockout transition when the new count reaches policy.Threshold, and
	// returns the resulting state.
	RecordFailure(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error)
	// RecordSuccess resets the counter, lazily unlocks an expired lock and
	// stamps last access.
	RecordSuccess(ctx context.Context, id uuid.UUID, now time.Time) error
	AdminLock(ctx context.Context, id uuid.UUID, until *time.Time, now time.Time) error
	AdminUnlock(ctx context.Context, id uuid.UUID, now time.Time) error

	InsertRefreshToken(ctx context.Context, token RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Rotate revokes the old row and inserts the replacement in one
	// transaction. It returns shared.ErrTokenRevoked when the old row was
	// already revoked, so a racing redeemer fails closed.
	Rotate(ctx context.Context, oldHash string, next RefreshToken, now time.Time) error
	RevokeRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// PurgeRefreshTokens deletes rows expired or revoked longer ago than the
	// retention window and reports how many were removed.
	PurgeRefreshTokens(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// PGRepository implements Repository on PostgreSQL. Credential and token
// queries deliberately run on the unscoped pool: they execute before a
// tenant session exists and RLS policies exempt these tables.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)
