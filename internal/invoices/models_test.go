package invoices

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDate_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Header{DueDate: Date{time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC)}})
	require.NoError(t, err)
	require.Contains(t, string(b), `"due_date":"2026-11-30"`)
}

func TestItemsTotal(t *testing.T) {
	items := []Item{
		{Service: catalog.Service{Price: decimal.RequireFromString("10.00")}},
		{Service: catalog.Service{Price: decimal.RequireFromString("25.00")}},
	}
	require.True(t, decimal.RequireFromString("35").Equal(ItemsTotal(items)))
	require.True(t, ItemsTotal(nil).IsZero())
}

func TestUniqueIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	require.Equal(t, []uuid.UUID{a, b}, uniqueIDs([]uuid.UUID{a, uuid.Nil, b, a}))
	require.Empty(t, uniqueIDs(nil))
}

func TestWriteLedgerError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{ErrNoServices, http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("wrapped: %w", ErrInvoiceNotFound), http.StatusNotFound, "not_found"},
		{ErrItemNotFound, http.StatusNotFound, "not_found"},
		{ErrNotEditable, http.StatusConflict, "invalid_state"},
		{fmt.Errorf("%w: render invoice: %w", ErrDependency, errors.New("timeout")), http.StatusBadGateway, "dependency_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeLedgerError(rec, httptest.NewRequest(http.MethodPost, "/", nil), tc.err, "do thing")
		require.Equal(t, tc.code, rec.Code, tc.err.Error())

		var body apperrors.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.body, body.Error.Code, tc.err.Error())
	}
}

func TestHandleTransition_InvalidID(t *testing.T) {
	handler := HandleTransition(nil, nil, ActionPay)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/not-a-uuid/pay", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
