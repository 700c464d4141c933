package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/shared"
)

// PermissionResolver expands a user's role memberships into role names and
// permission scopes. Resolution re-reads current assignments on every call;
// the result is snapshotted into the minted token and never refreshed for
// that token's lifetime.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (roles []string, scopes []string, err error)
}

// Recorder is the audit sink consumed by the service. Failures to record
// never abort the primary operation.
type Recorder interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// Metrics counts authentication outcomes. Optional; a nil implementation
// disables counting.
type Metrics interface {
	ObserveLogin(outcome string)
	ObserveLockout()
}

// ServiceConfig tunes the authentication service.
type ServiceConfig struct {
	Lockout        LockoutPolicy
	RotateRefresh  bool
	PurgeRetention time.Duration
}

// Service orchestrates login, token refresh and revocation.
type Service struct {
	repo     Repository
	resolver PermissionResolver
	tokens   *Tokens
	hasher   Hasher
	audit    Recorder
	logger   *slog.Logger
	cfg      ServiceConfig
	metrics  Metrics
	now      func() time.Time
}

// NewService constructs the authentication service.
func NewService(repo Repository, resolver PermissionResolver, tokens *Tokens, hasher Hasher, audit Recorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.Lockout.Threshold <= 0 {
		cfg.Lockout = DefaultLockoutPolicy()
	}
	if cfg.PurgeRetention <= 0 {
		cfg.PurgeRetention = 30 * 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		tokens:   tokens,
		hasher:   hasher,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches the outcome counters. Returns s for chaining.
func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// ClientMeta identifies the caller for refresh token records.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Credentials is a login attempt.
type Credentials struct {
	Login    string
	Password string
	MFACode  string
}

// UserInfo is the identity snapshot returned with a token pair.
type UserInfo struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Roles        []string   `json:"roles"`
	Permissions  []string   `json:"permissions"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty"`
	MFAEnabled   bool       `json:"mfa_enabled"`
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         UserInfo `json:"user"`
}

// Login verifies credentials under the lockout policy and, on success, mints
// an access token with the freshly resolved role/permission snapshot plus an
// opaque refresh token. Each failed attempt is terminal for that request:
// nothing is retried and the outcome is audited.
func (s *Service) Login(ctx context.Context, creds Credentials, meta ClientMeta) (*TokenPair, error) {
	now := s.now()

	user, err := s.repo.FindByLogin(ctx, creds.Login)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Unknown logins and wrong passwords are indistinguishable to
			// the caller.
			s.recordAudit(ctx, uuid.Nil, "auth.login", shared.AuditFailure,
				map[string]any{"login": creds.Login, "reason": "unknown_login"})
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}

	// Lock check runs before the hash comparison so a locked account leaks
	// no timing signal about password correctness.
	if err := s.cfg.Lockout.AllowAttempt(user, now); err != nil {
		s.recordAudit(ctx, user.ID, "auth.login", shared.AuditFailure,
			map[string]any{"reason": "locked"})
		return nil, err
	}
	if user.Status == StatusInactive || user.Status == StatusSuspended {
		s.recordAudit(ctx, user.ID, "auth.login", shared.AuditFailure,
			map[string]any{"reason": "status", "status": string(user.Status)})
		return nil, shared.ErrInvalidCredentials
	}

	if !s.hasher.Verify(creds.Password, user.PasswordHash) {
		updated, recErr := s.repo.RecordFailure(ctx, user.ID, s.cfg.Lockout, now)
		if recErr != nil {
			s.logError("record failed attempt", recErr)
		}
		metadata := map[string]any{"reason": "bad_password"}
		if updated != nil {
			metadata["failed_attempts"] = updated.FailedAttempts
			if updated.Status == StatusLocked {
				metadata["locked"] = true
				if s.metrics != nil {
					s.metrics.ObserveLockout()
				}
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveLogin("failure")
		}
		s.recordAudit(ctx, user.ID, "auth.login", shared.AuditFailure, metadata)
		// Even the attempt that trips the lockout answers with invalid
		// credentials; the lock surfaces on the next attempt.
		return nil, shared.ErrInvalidCredentials
	}

	// The password held but the second factor is missing. PARTIAL rather
	// than FAILURE: the credential itself was correct.
	if user.MFAEnabled && creds.MFACode == "" {
		s.recordAudit(ctx, user.ID, "auth.login", shared.AuditPartial,
			map[string]any{"reason": "mfa_required"})
		return nil, shared.ErrInvalidCredentials
	}

	if err := s.repo.RecordSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user, meta, now)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveLogin("success")
	}
	s.recordAudit(ctx, user.ID, "auth.login", shared.AuditSuccess, nil)
	return pair, nil
}

// Refresh redeems a refresh token for a new access token. With rotation
// enabled the old token is revoked and replaced atomically; presenting an
// already-rotated token fails closed and is audited as possible reuse.
func (s *Service) Refresh(ctx context.Context, rawToken string, meta ClientMeta) (*TokenPair, error) {
	now := s.now()
	hash := HashRefreshValue(rawToken)

	stored, err := s.repo.FindRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.recordAudit(ctx, uuid.Nil, "auth.refresh", shared.AuditFailure,
				map[string]any{"reason": "unknown_token"})
		}
		return nil, err
	}
	if stored.Revoked {
		// Reuse of a rotated token is a theft signal. The store surfaces it;
		// family-wide revocation policy lives with the operator.
		s.recordAudit(ctx, stored.UserID, "auth.refresh", shared.AuditFailure,
			map[string]any{"reason": "revoked", "possible_reuse": true})
		return nil, shared.ErrTokenRevoked
	}
	if !now.Before(stored.ExpiresAt) {
		s.recordAudit(ctx, stored.UserID, "auth.refresh", shared.AuditFailure,
			map[string]any{"reason": "expired"})
		return nil, &shared.InvalidTokenError{Reason: shared.TokenExpired}
	}

	user, err := s.repo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Status != StatusActive {
		s.recordAudit(ctx, user.ID, "auth.refresh", shared.AuditFailure,
			map[string]any{"reason": "status", "status": string(user.Status)})
		return nil, shared.ErrInvalidCredentials
	}

	if !s.cfg.RotateRefresh {
		pair, err := s.mintAccess(ctx, user, now)
		if err != nil {
			return nil, err
		}
		s.recordAudit(ctx, user.ID, "auth.refresh", shared.AuditSuccess, nil)
		return pair, nil
	}

	rawNext, next, err := s.buildRefreshToken(user.ID, meta, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rotate(ctx, hash, next, now); err != nil {
		if errors.Is(err, shared.ErrTokenRevoked) {
			// Lost the rotation race; the winner already holds the
			// replacement.
			s.recordAudit(ctx, user.ID, "auth.refresh", shared.AuditFailure,
				map[string]any{"reason": "rotation_race"})
		}
		return nil, err
	}
	pair, err := s.mintAccess(ctx, user, now)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = rawNext
	s.recordAudit(ctx, user.ID, "auth.refresh", shared.AuditSuccess, nil)
	return pair, nil
}

// Logout revokes a single refresh token of the principal.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, rawToken string) error {
	err := s.repo.RevokeRefreshToken(ctx, userID, HashRefreshValue(rawToken), s.now())
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	s.recordAudit(ctx, userID, "auth.logout", shared.AuditSuccess, nil)
	return nil
}

// LogoutEverywhere revokes every refresh token of the principal.
func (s *Service) LogoutEverywhere(ctx context.Context, userID uuid.UUID) error {
	revoked, err := s.repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "auth.logout_all", shared.AuditSuccess,
		map[string]any{"revoked": revoked})
	return nil
}

// RevokeAllForUser mass-revokes on behalf of administrative flows (password
// change, user soft deletion).
func (s *Service) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.RevokeAllForUser(ctx, userID, s.now())
}

// VerifyPassword checks a plaintext credential against the stored hash.
// Self-service flows re-authenticate through this before a sensitive change.
func (s *Service) VerifyPassword(ctx context.Context, userID uuid.UUID, plaintext string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrInvalidCredentials
		}
		return err
	}
	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// PurgeExpiredTokens garbage-collects refresh tokens past expiry plus the
// retention window. Invoked by the background worker.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repo.PurgeRefreshTokens(ctx, s.now(), s.cfg.PurgeRetention)
}

// Lock applies an administrative lock, bypassing the failure counter.
func (s *Service) Lock(ctx context.Context, actorID, userID uuid.UUID, until *time.Time) error {
	if err := s.repo.AdminLock(ctx, userID, until, s.now()); err != nil {
		return err
	}
	meta := map[string]any{"target": userID.String()}
	if until != nil {
		meta["until"] = until.UTC().Format(time.RFC3339)
	}
	s.recordAudit(ctx, actorID, "auth.lock", shared.AuditSuccess, meta)
	return nil
}

// Unlock lifts a lock and clears the counter.
func (s *Service) Unlock(ctx context.Context, actorID, userID uuid.UUID) error {
	if err := s.repo.AdminUnlock(ctx, userID, s.now()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "auth.unlock", shared.AuditSuccess,
		map[string]any{"target": userID.String()})
	return nil
}

func (s *Service) issueTokens(ctx context.Context, user *User, meta ClientMeta, now time.Time) (*TokenPair, error) {
	pair, err := s.mintAccess(ctx, user, now)
	if err != nil {
		return nil, err
	}
	raw, token, err := s.buildRefreshToken(user.ID, meta, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertRefreshToken(ctx, token); err != nil {
		return nil, err
	}
	pair.RefreshToken = raw
	return pair, nil
}

func (s *Service) mintAccess(ctx context.Context, user *User, now time.Time) (*TokenPair, error) {
	roles, scopes, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(user, roles, scopes, now)
	if err != nil {
		return nil, err
	}
	last := now
	return &TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		User: UserInfo{
			ID:           user.ID,
			TenantID:     user.TenantID,
			Username:     user.Username,
			Email:        user.Email,
			Roles:        roles,
			Permissions:  scopes,
			LastAccessAt: &last,
			MFAEnabled:   user.MFAEnabled,
		},
	}, nil
}

func (s *Service) buildRefreshToken(userID uuid.UUID, meta ClientMeta, now time.Time) (string, RefreshToken, error) {
	raw, err := s.tokens.NewRefreshValue()
	if err != nil {
		return "", RefreshToken{}, err
	}
	return raw, RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashRefreshValue(raw),
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action, outcome string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditEntry{
		ActorID:  actorID,
		Action:   action,
		Resource: "auth",
		Outcome:  outcome,
		Metadata: metadata,
	}); err != nil {
		s.logError("audit record", err)
	}
}

func (s *Service) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, slog.Any("error", err))
	}
}
