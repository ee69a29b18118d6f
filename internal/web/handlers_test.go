package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/catalog"
	"github.com/invoicething/invoicething/internal/customers"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubLookup map[uuid.UUID]*invoices.Detail

func (s stubLookup) Get(ctx context.Context, id uuid.UUID) (*invoices.Detail, error) {
	if inv, ok := s[id]; ok {
		return inv, nil
	}
	return nil, invoices.ErrInvoiceNotFound
}

func newRouter(t *testing.T, lookup InvoiceLookup) http.Handler {
	require.NoError(t, InitTemplates())
	r := chi.NewRouter()
	r.Get("/invoice/{invoice_id}", HandleInvoicePage(lookup))
	r.Get("/invoice/{invoice_id}/print", HandlePrintPage(lookup))
	return r
}

func TestPrintPage(t *testing.T) {
	id := uuid.New()
	city := "Berlin"
	lookup := stubLookup{id: {
		Header: invoices.Header{
			ID:      id,
			DueDate: invoices.Date{Time: time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC)},
			Total:   decimal.RequireFromString("35"),
			Status:  invoices.StatusSent,
		},
		Items: []invoices.Item{
			{Service: catalog.Service{Name: "Design", Price: decimal.RequireFromString("10")}},
			{Service: catalog.Service{Name: "Hosting <1 year>", Price: decimal.RequireFromString("25")}},
		},
		Customers: []customers.Customer{{Name: "Jane Doe", Email: "jane@example.com", City: &city}},
	}}
	router := newRouter(t, lookup)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoice/"+id.String()+"/print", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "Jane Doe")
	require.Contains(t, body, "Berlin")
	require.Contains(t, body, "35.00")
	require.Contains(t, body, "10.00")
	require.Contains(t, body, "2026-11-30")
	require.Contains(t, body, "Hosting &lt;1 year&gt;")
	require.NotContains(t, body, "Download PDF")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoice/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Download PDF")
}

func TestPrintPage_NotFound(t *testing.T) {
	router := newRouter(t, stubLookup{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoice/"+uuid.NewString()+"/print", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoice/nope/print", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
