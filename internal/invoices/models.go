package invoices

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/catalog"
	"github.com/invoicething/invoicething/internal/customers"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/shopspring/decimal"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(validation.DateLayout))
}

func (d Date) String() string {
	return d.Format(validation.DateLayout)
}

// Header holds an invoice's own columns.
type Header struct {
	ID        uuid.UUID       `json:"id"`
	OrgID     uuid.UUID       `json:"org_id"`
	DueDate   Date            `json:"due_date"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Item is an attached service. The price is read live from the service.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ServiceID uuid.UUID       `json:"service_id"`
	Service   catalog.Service `json:"service"`
}

// CustomerSummary is the listing projection of a billed customer.
type CustomerSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Invoice is the listing form.
type Invoice struct {
	Header
	Items     []Item            `json:"items"`
	Customers []CustomerSummary `json:"customers"`
}

// Detail is the full form returned by Get, with customers resolved.
type Detail struct {
	Header
	Items     []Item               `json:"items"`
	Customers []customers.Customer `json:"customers"`
}

// CreateParams is the input to Create.
type CreateParams struct {
	DueDate     string      `json:"due_date"`
	ServiceIDs  []uuid.UUID `json:"service_ids"`
	CustomerIDs []uuid.UUID `json:"customer_ids"`
}

// ItemsTotal sums the prices of the attached services.
func ItemsTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Service.Price)
	}
	return total
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
