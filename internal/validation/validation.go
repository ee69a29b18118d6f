package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates such as invoice due dates.
const DateLayout = "2006-01-02"

const (
	maxNameLength        = 200
	maxDescriptionLength = 2000
	maxFieldLength       = 200
)

var (
	// ErrInvalidSlug is returned when a slug doesn't match the required format
	ErrInvalidSlug = errors.New("invalid slug format")

	// ErrSlugTooShort is returned when a slug is too short
	ErrSlugTooShort = errors.New("slug must be at least 3 characters")

	// ErrSlugTooLong is returned when a slug is too long
	ErrSlugTooLong = errors.New("slug must be at most 64 characters")

	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

	// maxPrice matches NUMERIC(12, 2).
	maxPrice = decimal.New(1, 10)
)

// Error is a malformed-input failure. Handlers surface its message verbatim.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a validation error for a field.
func Invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a *Error.
func IsValidationError(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

// ValidateSlug validates an organization slug: 3-64 characters, lowercase
// alphanumeric with inner hyphens.
func ValidateSlug(slug string) error {
	slug = strings.ToLower(strings.TrimSpace(slug))

	if len(slug) < 3 {
		return ErrSlugTooShort
	}
	if len(slug) > 64 {
		return ErrSlugTooLong
	}

	if !slugRegex.MatchString(slug) {
		return ErrInvalidSlug
	}

	return nil
}

// NormalizeSlug normalizes a slug by converting to lowercase and trimming whitespace
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// IsValidEmail validates email format using net/mail (RFC 5322 simplified).
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Name trims and checks a required display name.
func Name(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", Invalid(field, "is required")
	}
	if len(value) > maxNameLength {
		return "", Invalid(field, "must be at most %d characters", maxNameLength)
	}
	return value, nil
}

// Description trims and bounds an optional free-text field.
func Description(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) > maxDescriptionLength {
		return "", Invalid(field, "must be at most %d characters", maxDescriptionLength)
	}
	return value, nil
}

// OptionalField trims an optional short field; empty input yields nil.
func OptionalField(field string, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > maxFieldLength {
		return nil, Invalid(field, "must be at most %d characters", maxFieldLength)
	}
	return &trimmed, nil
}

// Email trims and checks a required email address.
func Email(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", Invalid(field, "is required")
	}
	if !IsValidEmail(value) {
		return "", Invalid(field, "must be a valid email address")
	}
	return value, nil
}

// Price checks that a monetary amount is positive, has at most two decimal
// places and fits the storage column.
func Price(field string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return Invalid(field, "must be positive")
	}
	if value.Exponent() < -2 && !value.Equal(value.Round(2)) {
		return Invalid(field, "must have at most two decimal places")
	}
	if value.GreaterThanOrEqual(maxPrice) {
		return Invalid(field, "must be less than %s", maxPrice.String())
	}
	return nil
}

// Date parses a YYYY-MM-DD calendar date.
func Date(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, Invalid(field, "is required")
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, Invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return parsed, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds an ILIKE pattern matching value as a literal
// substring.
func ContainsPattern(value string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(value)) + "%"
}
