package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagodirecto/crm/internal/shared"
)

// RepositoryPort defines data access for user management. Every read filters
// soft-deleted rows explicitly; tenant isolation additionally comes from the
// RLS session the request middleware established.
type RepositoryPort interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]User, error)
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	Create(ctx context.Context, u User, passwordHash string) (*User, error)
	Update(ctx context.Context, u User) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool) error
	SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, tenant_id, username, email, COALESCE(full_name, ''), status,
	mfa_enabled, failed_attempts, locked_until, last_access_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.FullName, &u.Status,
		&u.MFAEnabled, &u.FailedAttempts, &u.LockedUntil, &u.LastAccessAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// List returns all live users of the tenant.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx,
		`SELECT `+userColumns+` FROM crm_users
		 WHERE tenant_id = $1 AND deleted_at IS NULL
		 ORDER BY username`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Get fetches a live user by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	return scanUser(q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM crm_users
		 WHERE id = $1 AND deleted_at IS NULL`, id))
}

// Create inserts a new user record.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) (*User, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`INSERT INTO crm_users (id, tenant_id, username, email, password_hash, full_name, status, mfa_enabled, failed_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, 0, now(), now())
		 RETURNING `+userColumns,
		uuid.New(), u.TenantID, u.Username, u.Email, passwordHash, nullIfEmpty(u.FullName), u.Status)
	created, err := scanUser(row)
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return created, nil
}

// Update changes profile fields and status.
func (r *Repository) Update(ctx context.Context, u User) (*User, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`UPDATE crm_users
		 SET email = $2, full_name = $3, status = $4, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+userColumns,
		u.ID, u.Email, nullIfEmpty(u.FullName), u.Status)
	updated, err := scanUser(row)
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return updated, nil
}

// UpdatePassword replaces the credential hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx,
		`UPDATE crm_users SET password_hash = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// UpdateMFA toggles the second factor requirement.
func (r *Repository) UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx,
		`UPDATE crm_users SET mfa_enabled = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// SoftDelete tombstones the row. The record persists; all read paths skip it.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx,
		`UPDATE crm_users SET deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
