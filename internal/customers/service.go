package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/shared"
)

// Service handles customer business logic.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit *shared.AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput carries the fields for a new customer.
type CreateInput struct {
	Code             string
	Name             string
	Email            *string
	Phone            *string
	TaxID            *string
	CreditLimit      float64
	PaymentTermsDays int
	AddressLine1     *string
	AddressLine2     *string
	City             *string
	Country          string
	Notes            *string
}

// UpdateInput carries partial updates; nil fields keep their current value.
type UpdateInput struct {
	Name             *string
	Email            *string
	Phone            *string
	TaxID            *string
	CreditLimit      *float64
	PaymentTermsDays *int
	AddressLine1     *string
	AddressLine2     *string
	City             *string
	Country          *string
	IsActive         *bool
	Notes            *string
}

// Create registers a customer. When no code is supplied one is generated.
func (s *Service) Create(ctx context.Context, tenantID, createdBy uuid.UUID, in CreateInput) (*Customer, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		generated, err := s.repo.NextCode(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("generate customer code: %w", err)
		}
		code = generated
	}
	if _, err := s.repo.GetByCode(ctx, tenantID, code); err == nil {
		return nil, shared.ErrDuplicate
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing customer: %w", err)
	}

	created, err := s.repo.Create(ctx, Customer{
		TenantID:         tenantID,
		Code:             code,
		Name:             in.Name,
		Email:            in.Email,
		Phone:            in.Phone,
		TaxID:            in.TaxID,
		CreditLimit:      in.CreditLimit,
		PaymentTermsDays: in.PaymentTermsDays,
		AddressLine1:     in.AddressLine1,
		AddressLine2:     in.AddressLine2,
		City:             in.City,
		Country:          strings.ToUpper(in.Country),
		IsActive:         true,
		Notes:            in.Notes,
		CreatedBy:        createdBy,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, createdBy, "customers.create", created.ID)
	return created, nil
}

// Update applies the non-nil fields of in to the customer.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*Customer, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		current.Name = *in.Name
	}
	if in.Email != nil {
		current.Email = in.Email
	}
	if in.Phone != nil {
		current.Phone = in.Phone
	}
	if in.TaxID != nil {
		current.TaxID = in.TaxID
	}
	if in.CreditLimit != nil {
		current.CreditLimit = *in.CreditLimit
	}
	if in.PaymentTermsDays != nil {
		current.PaymentTermsDays = *in.PaymentTermsDays
	}
	if in.AddressLine1 != nil {
		current.AddressLine1 = in.AddressLine1
	}
	if in.AddressLine2 != nil {
		current.AddressLine2 = in.AddressLine2
	}
	if in.City != nil {
		current.City = in.City
	}
	if in.Country != nil {
		current.Country = strings.ToUpper(*in.Country)
	}
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	if in.Notes != nil {
		current.Notes = in.Notes
	}

	updated, err := s.repo.Update(ctx, *current)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "customers.update", id)
	return updated, nil
}

// Get fetches a customer by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of customers plus the unpaged total.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Customer, int, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, tenantID, filter)
}

// Deactivate retires a customer without removing the row.
func (s *Service) Deactivate(ctx context.Context, actorID, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "customers.deactivate", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, target uuid.UUID) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditEntry{
		ActorID:  actorID,
		Action:   action,
		Resource: "customers",
		Outcome:  shared.AuditSuccess,
		Metadata: map[string]any{"target": target.String()},
	}); err != nil && s.logger != nil {
		s.logger.Error("audit record", slog.Any("error", err))
	}
}
