package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/rs/zerolog/log"
)

// HandleDownload handles GET /api/v1/invoices/{invoice_id}/pdf
func HandleDownload(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := uuid.Parse(chi.URLParam(r, "invoice_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invoice ID")
			return
		}

		pdf, err := service.Render(r.Context(), invoiceID)
		if err != nil {
			if errors.Is(err, invoices.ErrInvoiceNotFound) {
				apperrors.WriteNotFound(w, r, "Invoice not found")
				return
			}
			log.Error().Err(err).Str("invoice_id", invoiceID.String()).Msg("Failed to render invoice")
			apperrors.WriteDependencyError(w, r, "Failed to render invoice")
			return
		}

		w.Header().Set("Content-Type", contentTypePDF)
		w.Header().Set("Content-Disposition", `inline; filename="invoice.pdf"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}
