package catalog

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/audit"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// maxByIDs bounds the ids accepted by the by-ids lookup.
const maxByIDs = 100

// HandleCreate handles POST /api/v1/services
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	catalog := NewCatalog(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)
		orgID := auth.GetOrgID(ctx)

		var req CreateParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service, err := catalog.Create(ctx, orgID, req)
		if err != nil {
			if validation.IsValidationError(err) {
				apperrors.WriteValidationError(w, r, err.Error())
				return
			}
			log.Error().Err(err).Str("org_id", orgID.String()).Msg("Failed to create service")
			apperrors.WriteInternalError(w, r, "Failed to create service")
			return
		}

		if err := auditor.LogServiceCreated(ctx, orgID, userID, service.ID, service.Name, len(service.Children)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"service": service,
		})
	}
}

// HandleList handles GET /api/v1/services
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	catalog := NewCatalog(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := catalog.ListRoots(r.Context(), auth.GetOrgID(r.Context()))
		if err != nil {
			log.Error().Err(err).Msg("Failed to list services")
			apperrors.WriteInternalError(w, r, "Failed to list services")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"services": services,
		})
	}
}

// HandleSearch handles GET /api/v1/services/search?q=
func HandleSearch(pool *pgxpool.Pool) http.HandlerFunc {
	catalog := NewCatalog(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := catalog.Search(r.Context(), auth.GetOrgID(r.Context()), r.URL.Query().Get("q"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to search services")
			apperrors.WriteInternalError(w, r, "Failed to search services")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"services": services,
		})
	}
}

// HandleByIDs handles GET /api/v1/services/by-ids?ids=a,b
func HandleByIDs(pool *pgxpool.Pool) http.HandlerFunc {
	catalog := NewCatalog(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := ParseIDList(r.URL.Query().Get("ids"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		services, err := catalog.ByIDs(r.Context(), auth.GetOrgID(r.Context()), ids)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load services")
			apperrors.WriteInternalError(w, r, "Failed to load services")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"services": services,
		})
	}
}

// ParseIDList parses a comma-separated list of UUIDs, dropping blanks and
// duplicates.
func ParseIDList(raw string) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, validation.Invalid("ids", "invalid id %q", part)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) > maxByIDs {
		return nil, validation.Invalid("ids", "must have at most %d entries", maxByIDs)
	}
	return ids, nil
}
