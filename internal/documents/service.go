package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/rs/zerolog/log"
)

// InvoiceLookup loads an invoice without org scoping.
type InvoiceLookup interface {
	Get(ctx context.Context, invoiceID uuid.UUID) (*invoices.Detail, error)
}

// Service renders invoice documents through the printer, memoized in the
// cache.
type Service struct {
	lookup  InvoiceLookup
	printer Printer
	cache   Cache
	baseURL string
}

func NewService(lookup InvoiceLookup, printer Printer, cache Cache, baseURL string) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	return &Service{
		lookup:  lookup,
		printer: printer,
		cache:   cache,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CacheKey names the stored document for an invoice version. Any mutation
// bumps updated_at and therefore the key.
func CacheKey(invoiceID uuid.UUID, updatedAt time.Time) string {
	return fmt.Sprintf("invoices/%s/%d.pdf", invoiceID, updatedAt.UnixNano())
}

// PrintURL is the page the printer renders.
func (s *Service) PrintURL(invoiceID uuid.UUID) string {
	return s.baseURL + "/invoice/" + invoiceID.String() + "/print"
}

// Render returns the PDF of an invoice. Cache failures are logged and never
// fail the render; printer failures are returned.
func (s *Service) Render(ctx context.Context, invoiceID uuid.UUID) ([]byte, error) {
	invoice, err := s.lookup.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	key := CacheKey(invoice.ID, invoice.UpdatedAt)
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("invoice_id", invoiceID.String()).Str("key", key).Msg("Document cache read failed")
	} else if ok {
		log.Debug().Str("invoice_id", invoiceID.String()).Msg("Document cache hit")
		return cached, nil
	}

	start := time.Now()
	pdf, err := s.printer.Print(ctx, s.PrintURL(invoiceID))
	if err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", invoiceID, err)
	}
	log.Info().
		Str("invoice_id", invoiceID.String()).
		Int("bytes", len(pdf)).
		Dur("duration", time.Since(start)).
		Msg("Invoice document rendered")

	if err := s.cache.Put(ctx, key, pdf); err != nil {
		log.Warn().Err(err).Str("invoice_id", invoiceID.String()).Str("key", key).Msg("Document cache write failed")
	}
	return pdf, nil
}
