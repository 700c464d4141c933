package customers

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a tenant-scoped account record. The tenant filter is enforced
// twice: explicitly in every query and by the row level security policy on
// the connection the request middleware prepared.
type Customer struct {
	ID               uuid.UUID `json:"id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Email            *string   `json:"email,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	TaxID            *string   `json:"tax_id,omitempty"`
	CreditLimit      float64   `json:"credit_limit"`
	PaymentTermsDays int       `json:"payment_terms_days"`
	AddressLine1     *string   `json:"address_line1,omitempty"`
	AddressLine2     *string   `json:"address_line2,omitempty"`
	City             *string   `json:"city,omitempty"`
	Country          string    `json:"country"`
	IsActive         bool      `json:"is_active"`
	Notes            *string   `json:"notes,omitempty"`
	CreatedBy        uuid.UUID `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListFilter narrows a customer listing.
type ListFilter struct {
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}
