package invoices

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/audit"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/rs/zerolog/log"
)

var actionEvents = map[Action]string{
	ActionSend:   audit.EventInvoiceSent,
	ActionPay:    audit.EventInvoicePaid,
	ActionCancel: audit.EventInvoiceCanceled,
	ActionDelete: audit.EventInvoiceDeleted,
}

type addServiceRequest struct {
	ServiceID uuid.UUID `json:"service_id"`
}

type addCustomerRequest struct {
	CustomerID uuid.UUID `json:"customer_id"`
}

// writeLedgerError maps ledger errors onto the HTTP error taxonomy.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case validation.IsValidationError(err):
		apperrors.WriteValidationError(w, r, err.Error())
	case errors.Is(err, ErrInvoiceNotFound):
		apperrors.WriteNotFound(w, r, "Invoice not found")
	case errors.Is(err, ErrServiceNotFound):
		apperrors.WriteNotFound(w, r, "Service not found")
	case errors.Is(err, ErrCustomerNotFound):
		apperrors.WriteNotFound(w, r, "Customer not found")
	case errors.Is(err, ErrItemNotFound):
		apperrors.WriteNotFound(w, r, "Service is not attached to this invoice")
	case errors.Is(err, ErrCustomerNotAttached):
		apperrors.WriteNotFound(w, r, "Customer is not attached to this invoice")
	case errors.Is(err, ErrNotEditable):
		apperrors.WriteInvalidState(w, r, "Invoice can no longer be modified")
	case errors.Is(err, ErrDependency):
		log.Error().Err(err).Msg("Failed to " + action)
		apperrors.WriteDependencyError(w, r, "Failed to "+action)
	default:
		log.Error().Err(err).Msg("Failed to " + action)
		apperrors.WriteInternalError(w, r, "Failed to "+action)
	}
}

func invoiceIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "invoice_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid invoice ID")
		return uuid.Nil, false
	}
	return id, true
}

func logAudit(r *http.Request, auditor *audit.Writer, invoiceID uuid.UUID, action string, meta map[string]interface{}) {
	ctx := r.Context()
	if err := auditor.LogInvoiceEvent(ctx, auth.GetOrgID(ctx), auth.GetUserID(ctx), invoiceID, action, meta); err != nil {
		log.Error().Err(err).Str("invoice_id", invoiceID.String()).Msg("Failed to log audit event")
	}
}

// HandleCreate handles POST /api/v1/invoices
func HandleCreate(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req CreateParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		invoice, err := service.Create(ctx, auth.GetOrgID(ctx), auth.GetUserID(ctx), req)
		if err != nil {
			writeLedgerError(w, r, err, "create invoice")
			return
		}

		logAudit(r, auditor, invoice.ID, audit.EventInvoiceCreated, map[string]interface{}{
			"total":     invoice.Total.StringFixed(2),
			"items":     len(invoice.Items),
			"customers": len(invoice.Customers),
		})

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invoice": invoice,
		})
	}
}

// HandleList handles GET /api/v1/invoices
func HandleList(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoices, err := service.List(r.Context(), auth.GetOrgID(r.Context()))
		if err != nil {
			writeLedgerError(w, r, err, "list invoices")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invoices": invoices,
		})
	}
}

// HandleGet handles GET /api/v1/invoices/{invoice_id}. Public: the
// unguessable id is the capability.
func HandleGet(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := invoiceIDParam(w, r)
		if !ok {
			return
		}

		invoice, err := service.Get(r.Context(), invoiceID)
		if err != nil {
			writeLedgerError(w, r, err, "get invoice")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invoice": invoice,
		})
	}
}

// HandleAddService handles POST /api/v1/invoices/{invoice_id}/services
func HandleAddService(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := invoiceIDParam(w, r)
		if !ok {
			return
		}

		var req addServiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServiceID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "service_id is required")
			return
		}

		total, err := service.AddService(r.Context(), auth.GetOrgID(r.Context()), invoiceID, req.ServiceID)
		if err != nil {
			writeLedgerError(w, r, err, "add service")
			return
		}

		logAudit(r, auditor, invoiceID, audit.EventInvoiceServiceAdded, map[string]interface{}{
			"service_id": req.ServiceID.String(),
			"total":      total.StringFixed(2),
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invoice_id": invoiceID,
			"total":      total,
		})
	}
}

// HandleRemoveService handles DELETE /api/v1/invoices/{invoice_id}/services/{service_id}
func HandleRemoveService(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := invoiceIDParam(w, r)
		if !ok {
			return
		}
		serviceID, err := uuid.Parse(chi.URLParam(r, "service_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid service ID")
			return
		}

		total, err := service.RemoveService(r.Context(), auth.GetOrgID(r.Context()), invoiceID, serviceID)
		if err != nil {
			writeLedgerError(w, r, err, "remove service")
			return
		}

		logAudit(r, auditor, invoiceID, audit.EventInvoiceServiceRemoved, map[string]interface{}{
			"service_id": serviceID.String(),
			"total":      total.StringFixed(2),
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invoice_id": invoiceID,
			"total":      total,
		})
	}
}

// HandleAddCustomer handles POST /api/v1/invoices/{invoice_id}/customers
func HandleAddCustomer(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := invoiceIDParam(w, r)
		if !ok {
			return
		}

		var req addCustomerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "customer_id is required")
			return
		}

		if err := service.AddCustomer(r.Context(), auth.GetOrgID(r.Context()), invoiceID, req.CustomerID); err != nil {
			writeLedgerError(w, r, err, "add customer")
			return
		}

		logAudit(r, auditor, invoiceID, audit.EventInvoiceCustomerAdded, map[string]interface{}{
			"customer_id": req.CustomerID.String(),
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invoice_id":  invoiceID,
			"customer_id": req.CustomerID,
		})
	}
}

// HandleRemoveCustomer handles DELETE /api/v1/invoices/{invoice_id}/customers/{customer_id}
func HandleRemoveCustomer(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := invoiceIDParam(w, r)
		if !ok {
			return
		}
		customerID, err := uuid.Parse(chi.URLParam(r, "customer_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid customer ID")
			return
		}

		if err := service.RemoveCustomer(r.Context(), auth.GetOrgID(r.Context()), invoiceID, customerID); err != nil {
			writeLedgerError(w, r, err, "remove customer")
			return
		}

		logAudit(r, auditor, invoiceID, audit.EventInvoiceCustomerRemoved, map[string]interface{}{
			"customer_id": customerID.String(),
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invoice_id":  invoiceID,
			"customer_id": customerID,
		})
	}
}

// HandleTransition handles the send, pay, cancel and delete endpoints.
// A transition rejected by the status guard is a 409 carrying the current
// status.
func HandleTransition(service *Service, auditor *audit.Writer, action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := invoiceIDParam(w, r)
		if !ok {
			return
		}

		result, err := service.Apply(r.Context(), auth.GetOrgID(r.Context()), invoiceID, action)
		if err != nil {
			writeLedgerError(w, r, err, string(action)+" invoice")
			return
		}

		if !result.Applied {
			apperrors.WriteInvalidState(w, r, fmt.Sprintf(
				"Cannot %s an invoice that is %s; it must be %s", action, result.Status, action.Requires(),
			))
			return
		}

		logAudit(r, auditor, invoiceID, actionEvents[action], map[string]interface{}{
			"from": string(result.From),
			"to":   string(result.Status),
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"transition": result,
		})
	}
}
