package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SearchLimit caps autocomplete results.
const SearchLimit = 20

// ErrCustomerNotFound is returned when a customer does not exist in the org.
var ErrCustomerNotFound = errors.New("customer not found")

// Columns is the select list ScanCustomer expects.
const Columns = `id, org_id, name, email, phone, address, city, state, zip, country, created_at, updated_at`

// Service is the customer directory. Every query is scoped to an org.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Create validates params and inserts a customer.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Customer, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (org_id, name, email, phone, address, city, state, zip, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+Columns,
		orgID, params.Name, params.Email,
		params.Phone, params.Address, params.City, params.State, params.Zip, params.Country,
	)

	customer, err := ScanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer, nil
}

// List returns all customers of the org, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+Columns+`
		FROM customers
		WHERE org_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return collectCustomers(rows)
}

// Search matches customers whose name contains query, case-insensitively.
// An empty query returns the first customers by name.
func (s *Service) Search(ctx context.Context, orgID uuid.UUID, query string) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+Columns+`
		FROM customers
		WHERE org_id = $1 AND name ILIKE $2
		ORDER BY name ASC
		LIMIT $3
	`, orgID, validation.ContainsPattern(query), SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	return collectCustomers(rows)
}

// GetByID returns a customer of the org or ErrCustomerNotFound.
func (s *Service) GetByID(ctx context.Context, orgID, customerID uuid.UUID) (*Customer, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+Columns+`
		FROM customers
		WHERE id = $1 AND org_id = $2
	`, customerID, orgID)

	customer, err := ScanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return customer, nil
}

// ScanCustomer scans one row selected with Columns.
func ScanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.OrgID, &c.Name, &c.Email,
		&c.Phone, &c.Address, &c.City, &c.State, &c.Zip, &c.Country,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCustomers(rows pgx.Rows) ([]Customer, error) {
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		c, err := ScanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customer rows: %w", err)
	}
	return customers, nil
}
