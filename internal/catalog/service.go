package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/db"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SearchLimit caps autocomplete results.
const SearchLimit = 20

// Columns is the select list ScanService expects.
const Columns = `id, org_id, parent_id, name, description, price, position, created_at, updated_at`

// Catalog manages an organization's services. Every query is org scoped.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Create inserts a service and its ordered children in one transaction.
func (c *Catalog) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Service, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}

	var parent *Service
	err = db.InTx(ctx, c.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO services (org_id, name, description, price, position)
			VALUES ($1, $2, $3, $4, 0)
			RETURNING `+Columns,
			orgID, params.Name, params.Description, params.Price,
		)
		created, err := ScanService(row)
		if err != nil {
			return fmt.Errorf("failed to insert service: %w", err)
		}
		parent = created
		parent.Children = make([]Service, 0, len(params.Children))

		for i, child := range params.Children {
			row := tx.QueryRow(ctx, `
				INSERT INTO services (org_id, parent_id, name, description, price, position)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING `+Columns,
				orgID, parent.ID, child.Name, child.Description, child.Price, i,
			)
			createdChild, err := ScanService(row)
			if err != nil {
				return fmt.Errorf("failed to insert child service %d: %w", i, err)
			}
			parent.Children = append(parent.Children, *createdChild)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parent, nil
}

// ListRoots returns the org's top-level services, newest first, each with
// its children in position order.
func (c *Catalog) ListRoots(ctx context.Context, orgID uuid.UUID) ([]Service, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+Columns+`
		FROM services
		WHERE org_id = $1 AND parent_id IS NULL
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	roots, err := collectServices(rows)
	if err != nil {
		return nil, err
	}
	if err := c.attachChildren(ctx, orgID, roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// Search matches any service of the org (parents and children) whose name
// contains query, case-insensitively.
func (c *Catalog) Search(ctx context.Context, orgID uuid.UUID, query string) ([]Service, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+Columns+`
		FROM services
		WHERE org_id = $1 AND name ILIKE $2
		ORDER BY name ASC
		LIMIT $3
	`, orgID, validation.ContainsPattern(query), SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search services: %w", err)
	}
	return collectServices(rows)
}

// ByIDs returns the org's services among ids, each with its children.
// Unknown and foreign ids are skipped.
func (c *Catalog) ByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]Service, error) {
	if len(ids) == 0 {
		return []Service{}, nil
	}

	rows, err := c.pool.Query(ctx, `
		SELECT `+Columns+`
		FROM services
		WHERE org_id = $1 AND id = ANY($2)
		ORDER BY created_at ASC
	`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load services: %w", err)
	}

	services, err := collectServices(rows)
	if err != nil {
		return nil, err
	}
	if err := c.attachChildren(ctx, orgID, services); err != nil {
		return nil, err
	}
	return services, nil
}

func (c *Catalog) attachChildren(ctx context.Context, orgID uuid.UUID, parents []Service) error {
	if len(parents) == 0 {
		return nil
	}

	parentIDs := make([]uuid.UUID, len(parents))
	for i, p := range parents {
		parentIDs[i] = p.ID
	}

	rows, err := c.pool.Query(ctx, `
		SELECT `+Columns+`
		FROM services
		WHERE org_id = $1 AND parent_id = ANY($2)
		ORDER BY parent_id, position ASC
	`, orgID, parentIDs)
	if err != nil {
		return fmt.Errorf("failed to load child services: %w", err)
	}

	children, err := collectServices(rows)
	if err != nil {
		return err
	}
	GroupChildren(parents, children)
	return nil
}

// GroupChildren assigns each child to its parent in parents, preserving the
// children's order.
func GroupChildren(parents []Service, children []Service) {
	index := make(map[uuid.UUID]int, len(parents))
	for i := range parents {
		index[parents[i].ID] = i
		parents[i].Children = []Service{}
	}
	for _, child := range children {
		if child.ParentID == nil {
			continue
		}
		if i, ok := index[*child.ParentID]; ok {
			parents[i].Children = append(parents[i].Children, child)
		}
	}
}

// ScanService scans one row selected with Columns.
func ScanService(row pgx.Row) (*Service, error) {
	var s Service
	var parentID uuid.NullUUID
	err := row.Scan(
		&s.ID, &s.OrgID, &parentID, &s.Name, &s.Description,
		&s.Price, &s.Position, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		s.ParentID = &parentID.UUID
	}
	return &s, nil
}

func collectServices(rows pgx.Rows) ([]Service, error) {
	defer rows.Close()

	services := []Service{}
	for rows.Next() {
		s, err := ScanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating service rows: %w", err)
	}
	return services, nil
}
