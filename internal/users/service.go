package users

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/shared"
)

// SessionRevoker mass-revokes a user's refresh tokens. Implemented by the
// auth service.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AccountLocker applies administrative locks, bypassing the failure counter.
type AccountLocker interface {
	Lock(ctx context.Context, actorID, userID uuid.UUID, until *time.Time) error
	Unlock(ctx context.Context, actorID, userID uuid.UUID) error
}

// PasswordHasher derives credential digests.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// PasswordVerifier re-checks a live credential. Implemented by the auth
// service; self-service changes re-authenticate through it.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID uuid.UUID, plaintext string) error
}

// Service handles user management business logic.
type Service struct {
	repo     RepositoryPort
	hasher   PasswordHasher
	revoker  SessionRevoker
	locker   AccountLocker
	verifier PasswordVerifier
	audit    *shared.AuditRecorder
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, hasher PasswordHasher, revoker SessionRevoker, locker AccountLocker, audit *shared.AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, hasher: hasher, revoker: revoker, locker: locker, audit: audit, logger: logger}
}

// WithPasswordVerifier enables the self-service password change. Returns s
// for chaining.
func (s *Service) WithPasswordVerifier(v PasswordVerifier) *Service {
	s.verifier = v
	return s
}

// List returns all live users of the tenant.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	return s.repo.List(ctx, tenantID)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new user with a hashed credential.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, u User, password string) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	if u.Status == "" {
		u.Status = "ACTIVE"
	}
	created, err := s.repo.Create(ctx, u, hash)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "users.create", shared.AuditSuccess, created.ID)
	return created, nil
}

// Update changes profile fields and status.
func (s *Service) Update(ctx context.Context, actorID uuid.UUID, u User) (*User, error) {
	updated, err := s.repo.Update(ctx, u)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "users.update", shared.AuditSuccess, u.ID)
	return updated, nil
}

// ChangePassword replaces the credential and revokes every refresh token so
// stolen sessions die with the old password.
func (s *Service) ChangePassword(ctx context.Context, actorID, userID uuid.UUID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if _, err := s.revoker.RevokeAllForUser(ctx, userID); err != nil {
		s.logError("revoke sessions after password change", err)
	}
	s.recordAudit(ctx, actorID, "users.change_password", shared.AuditSuccess, userID)
	return nil
}

// Delete soft-deletes the user and mass-revokes its refresh tokens. The
// token rows persist for forensics but are no longer redeemable.
func (s *Service) Delete(ctx context.Context, actorID, userID uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, userID, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := s.revoker.RevokeAllForUser(ctx, userID); err != nil {
		s.logError("revoke sessions after delete", err)
	}
	s.recordAudit(ctx, actorID, "users.delete", shared.AuditSuccess, userID)
	return nil
}

// ProfileInput carries the fields a user may edit on their own account;
// nil keeps the current value.
type ProfileInput struct {
	FullName *string
	Email    *string
}

// Profile returns the caller's own record.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.repo.Get(ctx, userID)
}

// UpdateProfile edits the caller's contact fields. Status, roles and lockout
// state stay admin-only.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*User, error) {
	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		current.FullName = *in.FullName
	}
	if in.Email != nil {
		current.Email = *in.Email
	}
	updated, err := s.repo.Update(ctx, *current)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, userID, "users.update_profile", shared.AuditSuccess, userID)
	return updated, nil
}

// ChangeOwnPassword re-authenticates with the current password before
// replacing the credential, then revokes every refresh session.
func (s *Service) ChangeOwnPassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if s.verifier == nil {
		return errors.New("users: password verifier not configured")
	}
	if err := s.verifier.VerifyPassword(ctx, userID, current); err != nil {
		s.recordAudit(ctx, userID, "users.change_own_password", shared.AuditFailure, userID)
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if _, err := s.revoker.RevokeAllForUser(ctx, userID); err != nil {
		s.logError("revoke sessions after password change", err)
	}
	s.recordAudit(ctx, userID, "users.change_own_password", shared.AuditSuccess, userID)
	return nil
}

// SetMFA enables or disables the caller's second factor.
func (s *Service) SetMFA(ctx context.Context, userID uuid.UUID, enabled bool) error {
	if err := s.repo.UpdateMFA(ctx, userID, enabled); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "users.set_mfa", shared.AuditSuccess, userID)
	return nil
}

// Lock applies an administrative lock with an optional expiry.
func (s *Service) Lock(ctx context.Context, actorID, userID uuid.UUID, until *time.Time) error {
	return s.locker.Lock(ctx, actorID, userID, until)
}

// Unlock lifts an administrative or counter-driven lock.
func (s *Service) Unlock(ctx context.Context, actorID, userID uuid.UUID) error {
	return s.locker.Unlock(ctx, actorID, userID)
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action, outcome string, target uuid.UUID) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditEntry{
		ActorID:  actorID,
		Action:   action,
		Resource: "users",
		Outcome:  outcome,
		Metadata: map[string]any{"target": target.String()},
	}); err != nil {
		s.logError("audit record", err)
	}
}

func (s *Service) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, slog.Any("error", err))
	}
}
