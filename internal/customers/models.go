package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/validation"
)

// Customer is a billable contact of an organization.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	Address   *string   `json:"address,omitempty"`
	City      *string   `json:"city,omitempty"`
	State     *string   `json:"state,omitempty"`
	Zip       *string   `json:"zip,omitempty"`
	Country   *string   `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams is the input to Create. Optional fields may be nil or blank.
type CreateParams struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	Zip     *string `json:"zip"`
	Country *string `json:"country"`
}

// Normalize trims every field and validates it, returning the cleaned copy.
func (p CreateParams) Normalize() (CreateParams, error) {
	var err error
	out := CreateParams{}

	if out.Name, err = validation.Name("name", p.Name); err != nil {
		return CreateParams{}, err
	}
	if out.Email, err = validation.Email("email", p.Email); err != nil {
		return CreateParams{}, err
	}

	optional := []struct {
		field string
		in    *string
		out   **string
	}{
		{"phone", p.Phone, &out.Phone},
		{"address", p.Address, &out.Address},
		{"city", p.City, &out.City},
		{"state", p.State, &out.State},
		{"zip", p.Zip, &out.Zip},
		{"country", p.Country, &out.Country},
	}
	for _, f := range optional {
		if *f.out, err = validation.OptionalField(f.field, f.in); err != nil {
			return CreateParams{}, err
		}
	}

	return out, nil
}
