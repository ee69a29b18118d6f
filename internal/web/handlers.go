package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/rs/zerolog/log"
)

// InvoiceLookup loads an invoice without org scoping.
type InvoiceLookup interface {
	Get(ctx context.Context, invoiceID uuid.UUID) (*invoices.Detail, error)
}

// InvoicePageData feeds invoice.html.
type InvoicePageData struct {
	Title   string
	Invoice *invoices.Detail
	Print   bool
	PDFURL  string
}

// HandleInvoicePage renders GET /invoice/{invoice_id}, the page linked from
// invoice emails.
func HandleInvoicePage(lookup InvoiceLookup) http.HandlerFunc {
	return invoicePage(lookup, false)
}

// HandlePrintPage renders GET /invoice/{invoice_id}/print, the page the
// document renderer prints.
func HandlePrintPage(lookup InvoiceLookup) http.HandlerFunc {
	return invoicePage(lookup, true)
}

func invoicePage(lookup InvoiceLookup, printView bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := uuid.Parse(chi.URLParam(r, "invoice_id"))
		if err != nil {
			http.Error(w, "Invoice not found", http.StatusNotFound)
			return
		}

		invoice, err := lookup.Get(r.Context(), invoiceID)
		if err != nil {
			if errors.Is(err, invoices.ErrInvoiceNotFound) {
				http.Error(w, "Invoice not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("invoice_id", invoiceID.String()).Msg("Failed to load invoice page")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		RenderTemplate(w, r, "invoice.html", &InvoicePageData{
			Title:   "Invoice " + invoiceID.String()[:8],
			Invoice: invoice,
			Print:   printView,
			PDFURL:  "/api/v1/invoices/" + invoiceID.String() + "/pdf",
		})
	}
}
