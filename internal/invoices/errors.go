package invoices

import (
	"errors"

	"github.com/invoicething/invoicething/internal/validation"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrItemNotFound        = errors.New("service is not attached to the invoice")
	ErrCustomerNotAttached = errors.New("customer is not attached to the invoice")

	// ErrNotEditable is returned when items or customers change on a paid
	// or deleted invoice.
	ErrNotEditable = errors.New("invoice can no longer be modified")

	// ErrDependency wraps failures of the renderer or the mailer.
	ErrDependency = errors.New("dependency failure")

	ErrNoServices   = &validation.Error{Field: "service_ids", Message: "no services found"}
	ErrNoRecipients = &validation.Error{Field: "customers", Message: "invoice has no customers to send to"}
)
