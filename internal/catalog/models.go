package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/shopspring/decimal"
)

// maxChildren bounds the sub-services created with one parent.
const maxChildren = 50

// Service is a priced catalog entry. A parent's price is independent of its
// children's prices.
type Service struct {
	ID          uuid.UUID       `json:"id"`
	OrgID       uuid.UUID       `json:"org_id"`
	ParentID    *uuid.UUID      `json:"parent_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Position    int             `json:"position"`
	Children    []Service       `json:"children,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ChildParams describes one sub-service.
type ChildParams struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// CreateParams is the input to Catalog.Create.
type CreateParams struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Children    []ChildParams   `json:"children"`
}

// Normalize validates the parent and every child and returns trimmed copies.
func (p CreateParams) Normalize() (CreateParams, error) {
	name, description, err := normalizeEntry("", p.Name, p.Description, p.Price)
	if err != nil {
		return CreateParams{}, err
	}
	if len(p.Children) > maxChildren {
		return CreateParams{}, validation.Invalid("children", "must have at most %d entries", maxChildren)
	}

	out := CreateParams{
		Name:        name,
		Description: description,
		Price:       p.Price,
		Children:    make([]ChildParams, 0, len(p.Children)),
	}
	for i, child := range p.Children {
		name, description, err := normalizeEntry(fmt.Sprintf("children[%d].", i), child.Name, child.Description, child.Price)
		if err != nil {
			return CreateParams{}, err
		}
		out.Children = append(out.Children, ChildParams{Name: name, Description: description, Price: child.Price})
	}
	return out, nil
}

func normalizeEntry(prefix, name, description string, price decimal.Decimal) (string, string, error) {
	name, err := validation.Name(prefix+"name", name)
	if err != nil {
		return "", "", err
	}
	description, err = validation.Description(prefix+"description", description)
	if err != nil {
		return "", "", err
	}
	if err := validation.Price(prefix+"price", price); err != nil {
		return "", "", err
	}
	return name, description, nil
}
