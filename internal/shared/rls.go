package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations repositories run queries on. Both
// *pgxpool.Pool and a tenant-scoped *pgxpool.Conn satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	setSessionContextSQL = `SELECT set_config('app.current_tenant', $1, false),
       set_config('app.current_user', $2, false),
       set_config('app.current_roles', $3, false)`
	clearSessionContextSQL = `SELECT set_config('app.current_tenant', '', false),
       set_config('app.current_user', '', false),
       set_config('app.current_roles', '', false)`
)

// TenantSessions hands out database connections whose session variables carry
// the authenticated principal's tenant id, user id and role list. PostgreSQL
// row-level security policies read these variables, so every query on the
// scoped connection is tenant-filtered even if a WHERE clause is missed in
// application code.
type TenantSessions struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTenantSessions constructs the session manager.
func NewTenantSessions(pool *pgxpool.Pool, logger *slog.Logger) *TenantSessions {
	return &TenantSessions{pool: pool, logger: logger}
}

// TenantSession is a pooled connection with the RLS variables set. It must be
// released on every exit path; Release clears the variables before returning
// the connection to the pool so no state leaks into the next request.
type TenantSession struct {
	conn     *pgxpool.Conn
	logger   *slog.Logger
	released bool
}

// Acquire takes a connection from the pool and pushes the principal into the
// PostgreSQL session. On any failure the connection is returned untouched.
func (m *TenantSessions) Acquire(ctx context.Context, p *Principal) (*TenantSession, error) {
	if p == nil {
		return nil, fmt.Errorf("shared: tenant session requires a principal")
	}
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("shared: acquire tenant session: %w", err)
	}
	roles := strings.Join(p.Roles, ",")
	if _, err := conn.Exec(ctx, setSessionContextSQL, p.TenantID.String(), p.UserID.String(), roles); err != nil {
		conn.Release()
		return nil, fmt.Errorf("shared: set session context: %w", err)
	}
	return &TenantSession{conn: conn, logger: m.logger}, nil
}

// Querier exposes the scoped connection for repository use.
func (s *TenantSession) Querier() Querier {
	return s.conn
}

// Release clears the session variables and returns the connection to the
// pool. It is idempotent; calling it twice is safe. Cleanup runs even when
// the request context has already been cancelled.
func (s *TenantSession) Release(ctx context.Context) {
	if s == nil || s.released {
		return
	}
	s.released = true
	if s.conn == nil {
		return
	}
	cleanupCtx := context.WithoutCancel(ctx)
	if _, err := s.conn.Exec(cleanupCtx, clearSessionContextSQL); err != nil {
		// A connection we could not clean must not go back into the pool.
		if s.logger != nil {
			s.logger.Error("clear session context", slog.Any("error", err))
		}
		s.conn.Conn().Close(cleanupCtx)
	}
	s.conn.Release()
}

type tenantSessionContextKey struct{}

// ContextWithTenantSession stores the scoped session in context so
// repositories pick it up transparently.
func ContextWithTenantSession(ctx context.Context, s *TenantSession) context.Context {
	return context.WithValue(ctx, tenantSessionContextKey{}, s)
}

// QuerierFromContext returns the tenant-scoped querier when the request
// carries one, falling back to the unscoped querier otherwise.
func QuerierFromContext(ctx context.Context, fallback Querier) Querier {
	if s, ok := ctx.Value(tenantSessionContextKey{}).(*TenantSession); ok && s != nil && !s.released {
		return s.conn
	}
	return fallback
}
