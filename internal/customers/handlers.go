package customers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/audit"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// HandleCreate handles POST /api/v1/customers
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	service := NewService(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)
		orgID := auth.GetOrgID(ctx)

		var req CreateParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		customer, err := service.Create(ctx, orgID, req)
		if err != nil {
			if validation.IsValidationError(err) {
				apperrors.WriteValidationError(w, r, err.Error())
				return
			}
			log.Error().Err(err).Str("org_id", orgID.String()).Msg("Failed to create customer")
			apperrors.WriteInternalError(w, r, "Failed to create customer")
			return
		}

		if err := auditor.LogCustomerCreated(ctx, orgID, userID, customer.ID, customer.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"customer": customer,
		})
	}
}

// HandleList handles GET /api/v1/customers
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	service := NewService(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		customers, err := service.List(r.Context(), auth.GetOrgID(r.Context()))
		if err != nil {
			log.Error().Err(err).Msg("Failed to list customers")
			apperrors.WriteInternalError(w, r, "Failed to list customers")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"customers": customers,
		})
	}
}

// HandleSearch handles GET /api/v1/customers/search?q=
func HandleSearch(pool *pgxpool.Pool) http.HandlerFunc {
	service := NewService(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		customers, err := service.Search(r.Context(), auth.GetOrgID(r.Context()), r.URL.Query().Get("q"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to search customers")
			apperrors.WriteInternalError(w, r, "Failed to search customers")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"customers": customers,
		})
	}
}

// HandleGet handles GET /api/v1/customers/{customer_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	service := NewService(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := uuid.Parse(chi.URLParam(r, "customer_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid customer ID")
			return
		}

		customer, err := service.GetByID(r.Context(), auth.GetOrgID(r.Context()), customerID)
		if err != nil {
			if errors.Is(err, ErrCustomerNotFound) {
				apperrors.WriteNotFound(w, r, "Customer not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get customer")
			apperrors.WriteInternalError(w, r, "Failed to get customer")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"customer": customer,
		})
	}
}
