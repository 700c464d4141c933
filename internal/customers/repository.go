package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagodirecto/crm/internal/shared"
)

// RepositoryPort defines data access for customer records.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Customer, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (*Customer, error)
	Update(ctx context.Context, c Customer) (*Customer, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	NextCode(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, tenant_id, code, name, email, phone, tax_id, credit_limit,
	payment_terms_days, address_line1, address_line2, city, country, is_active, notes,
	created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.TaxID,
		&c.CreditLimit, &c.PaymentTermsDays, &c.AddressLine1, &c.AddressLine2,
		&c.City, &c.Country, &c.IsActive, &c.Notes,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Get fetches a customer by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	return scanCustomer(q.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM crm_customers WHERE id = $1`, id))
}

// GetByCode fetches a customer by its tenant-unique code.
func (r *Repository) GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Customer, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	return scanCustomer(q.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM crm_customers
		 WHERE tenant_id = $1 AND code = $2`, tenantID, code))
}

// List returns a filtered page of customers plus the unpaged total.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Customer, int, error) {
	q := shared.QuerierFromContext(ctx, r.pool)

	where := "WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d OR email ILIKE $%d)", n, n, n)
	}

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM crm_customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM crm_customers %s ORDER BY code LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// Create inserts a new customer record.
func (r *Repository) Create(ctx context.Context, c Customer) (*Customer, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`INSERT INTO crm_customers (id, tenant_id, code, name, email, phone, tax_id, credit_limit,
			payment_terms_days, address_line1, address_line2, city, country, is_active, notes,
			created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())
		 RETURNING `+customerColumns,
		uuid.New(), c.TenantID, c.Code, c.Name, c.Email, c.Phone, c.TaxID, c.CreditLimit,
		c.PaymentTermsDays, c.AddressLine1, c.AddressLine2, c.City, c.Country, c.IsActive,
		c.Notes, c.CreatedBy)
	created, err := scanCustomer(row)
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return created, nil
}

// Update rewrites the mutable fields of a customer.
func (r *Repository) Update(ctx context.Context, c Customer) (*Customer, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`UPDATE crm_customers
		 SET name = $2, email = $3, phone = $4, tax_id = $5, credit_limit = $6,
		     payment_terms_days = $7, address_line1 = $8, address_line2 = $9,
		     city = $10, country = $11, is_active = $12, notes = $13, updated_at = now()
		 WHERE id = $1
		 RETURNING `+customerColumns,
		c.ID, c.Name, c.Email, c.Phone, c.TaxID, c.CreditLimit,
		c.PaymentTermsDays, c.AddressLine1, c.AddressLine2,
		c.City, c.Country, c.IsActive, c.Notes)
	updated, err := scanCustomer(row)
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return updated, nil
}

// Deactivate flips the record inactive. Customer rows are never hard deleted;
// invoices keep referencing them.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx,
		`UPDATE crm_customers SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// NextCode suggests the next customer code. Best effort only; uniqueness is
// still enforced by the constraint at insert time.
func (r *Repository) NextCode(ctx context.Context, tenantID uuid.UUID) (string, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	var count int64
	err := q.QueryRow(ctx,
		`SELECT count(*) FROM crm_customers WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CUST-%05d", count+1), nil
}

func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
