package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pagodirecto/crm/internal/platform/db"
	"github.com/pagodirecto/crm/internal/shared"
)

const userColumns = `id, tenant_id, username, email, password_hash, full_name,
	mfa_enabled, COALESCE(mfa_secret, ''), status, failed_attempts, locked_until,
	last_access_at, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FullName, &u.MFAEnabled, &u.MFASecret, &u.Status, &u.FailedAttempts,
		&u.LockedUntil, &u.LastAccessAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByLogin fetches a live user by username or email.
func (r *PGRepository) FindByLogin(ctx context.Context, login string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM crm_users
		 WHERE (username = $1 OR email = $1) AND deleted_at IS NULL`, login)
	return scanUser(row)
}

// FindByID fetches a live user by id.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM crm_users
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

// RecordFailure is a single read-modify-write: the increment and the
// threshold decision happen in one UPDATE so concurrent failed attempts can
// neither skip nor double-apply the lockout.
func (r *PGRepository) RecordFailure(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error) {
	lockUntil := now.Add(policy.LockDuration)
	row := r.pool.QueryRow(ctx,
		`UPDATE crm_users
		 SET failed_attempts = failed_attempts + 1,
		     status = CASE WHEN failed_attempts + 1 >= $2 THEN 'LOCKED' ELSE status END,
		     locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		     updated_at = $4
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+userColumns, id, policy.Threshold, lockUntil, now)
	return scanUser(row)
}

// RecordSuccess resets the failure counter, performs the lazy unlock when the
// lock has expired and stamps last access.
func (r *PGRepository) RecordSuccess(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE crm_users
		 SET failed_attempts = 0,
		     status = CASE WHEN status = 'LOCKED' AND locked_until IS NOT NULL AND locked_until <= $2
		              THEN 'ACTIVE' ELSE status END,
		     locked_until = CASE WHEN status = 'LOCKED' AND locked_until IS NOT NULL AND locked_until <= $2
		                    THEN NULL ELSE locked_until END,
		     last_access_at = $2,
		     updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AdminLock sets an explicit or indefinite lock, bypassing the counter.
func (r *PGRepository) AdminLock(ctx context.Context, id uuid.UUID, until *time.Time, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE crm_users SET status = 'LOCKED', locked_until = $2, updated_at = $3
		 WHERE id = $1 AND deleted_at IS NULL`, id, until, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// AdminUnlock clears any lock and the failure counter.
func (r *PGRepository) AdminUnlock(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE crm_users
		 SET status = 'ACTIVE', locked_until = NULL, failed_attempts = 0, updated_at = $2
		 WHERE id = $1 AND status = 'LOCKED' AND deleted_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// InsertRefreshToken stores a new token row. Only the hash ever reaches the
// database.
func (r *PGRepository) InsertRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO crm_refresh_tokens (id, user_id, token_hash, expires_at, revoked, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, false, $5, $6, $7)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt,
		nullIfEmpty(token.IPAddress), nullIfEmpty(token.UserAgent), token.CreatedAt)
	return err
}

// FindRefreshToken fetches a token row by hash regardless of state, so the
// caller can distinguish revoked from expired from unknown.
func (r *PGRepository) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var t RefreshToken
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked, revoked_at,
		        COALESCE(ip_address::text, ''), COALESCE(user_agent, ''), created_at
		 FROM crm_refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.RevokedAt,
			&t.IPAddress, &t.UserAgent, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Rotate revokes the old token and inserts its replacement in one
// transaction. The guarded UPDATE makes the rotation race single-winner: the
// losing caller matches zero rows and gets shared.ErrTokenRevoked.
func (r *PGRepository) Rotate(ctx context.Context, oldHash string, next RefreshToken, now time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE crm_refresh_tokens SET revoked = true, revoked_at = $2
			 WHERE token_hash = $1 AND NOT revoked`, oldHash, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrTokenRevoked
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO crm_refresh_tokens (id, user_id, token_hash, expires_at, revoked, ip_address, user_agent, created_at)
			 VALUES ($1, $2, $3, $4, false, $5, $6, $7)`,
			next.ID, next.UserID, next.TokenHash, next.ExpiresAt,
			nullIfEmpty(next.IPAddress), nullIfEmpty(next.UserAgent), next.CreatedAt)
		return err
	})
}

// RevokeRefreshToken revokes a single token owned by the user.
func (r *PGRepository) RevokeRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE crm_refresh_tokens SET revoked = true, revoked_at = $3
		 WHERE token_hash = $1 AND user_id = $2 AND NOT revoked`, tokenHash, userID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every live token of the user. Used for
// logout-everywhere, password changes and user soft deletion.
func (r *PGRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE crm_refresh_tokens SET revoked = true, revoked_at = $2
		 WHERE user_id = $1 AND NOT revoked`, userID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeRefreshTokens garbage-collects rows past expiry or revocation plus
// the retention window.
func (r *PGRepository) PurgeRefreshTokens(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM crm_refresh_tokens
		 WHERE expires_at < $1 OR (revoked AND revoked_at < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("auth: purge refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
