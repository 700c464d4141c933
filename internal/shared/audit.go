package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Audit outcomes.
const (
	AuditSuccess = "SUCCESS"
	AuditFailure = "FAILURE"
	AuditPartial = "PARTIAL"
)

// AuditSpoolKey is the Redis list holding entries that could not be written
// to PostgreSQL. The worker drains it.
const AuditSpoolKey = "audit:spool"

// AuditEntry represents an append-only record in crm_audit_log. Entries are
// immutable once written; there is no update or delete path.
type AuditEntry struct {
	ActorID    uuid.UUID      `json:"actor_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Outcome    string         `json:"outcome"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AuditRecorder persists security-relevant events. Record never fails the
// operation being observed: on a storage error the entry is spooled to Redis
// for later replay, and if that also fails it is only logged. Availability of
// the primary path is deliberately ranked above completeness of the trail.
type AuditRecorder struct {
	pool    *pgxpool.Pool
	spool   *redis.Client
	logger  *slog.Logger
	onSpool func()
}

// NewAuditRecorder returns a recorder writing to crm_audit_log.
func NewAuditRecorder(pool *pgxpool.Pool, spool *redis.Client, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{pool: pool, spool: spool, logger: logger}
}

// WithSpoolObserver registers a callback fired whenever an entry misses
// PostgreSQL and lands on the spool. Used for metrics. Returns r for chaining.
func (r *AuditRecorder) WithSpoolObserver(fn func()) *AuditRecorder {
	r.onSpool = fn
	return r
}

// Record appends the entry. The returned error is informational; callers must
// not roll back or abort on it.
func (r *AuditRecorder) Record(ctx context.Context, entry AuditEntry) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	if entry.Action == "" || entry.Resource == "" || entry.Outcome == "" {
		return errors.New("audit entry requires action/resource/outcome")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	// Record must observe even requests whose context was already cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := r.insert(ctx, entry); err != nil {
		r.logError("audit insert", err)
		if spoolErr := r.enqueue(ctx, entry); spoolErr != nil {
			r.logError("audit spool", spoolErr)
			return spoolErr
		}
		if r.onSpool != nil {
			r.onSpool()
		}
	}
	return nil
}

// Replay drains up to limit spooled entries back into PostgreSQL. Entries
// that still cannot be written are pushed back onto the spool.
func (r *AuditRecorder) Replay(ctx context.Context, limit int) (int, error) {
	if r.spool == nil {
		return 0, nil
	}
	replayed := 0
	for i := 0; i < limit; i++ {
		raw, err := r.spool.LPop(ctx, AuditSpoolKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return replayed, nil
			}
			return replayed, err
		}
		var entry AuditEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			r.logError("audit replay decode", err)
			continue
		}
		if err := r.insert(ctx, entry); err != nil {
			_ = r.spool.RPush(ctx, AuditSpoolKey, raw).Err()
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

func (r *AuditRecorder) insert(ctx context.Context, entry AuditEntry) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	var actor any
	if entry.ActorID != uuid.Nil {
		actor = entry.ActorID
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO crm_audit_log (actor_id, action, resource, outcome, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		actor, entry.Action, entry.Resource, entry.Outcome, metaJSON, entry.OccurredAt)
	return err
}

func (r *AuditRecorder) enqueue(ctx context.Context, entry AuditEntry) error {
	if r.spool == nil {
		return errors.New("audit spool not configured")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.spool.RPush(ctx, AuditSpoolKey, raw).Err()
}

func (r *AuditRecorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, slog.Any("error", err))
	}
}
