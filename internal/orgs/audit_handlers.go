package orgs

import (
	"net/http"
	"strconv"

	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/audit"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// HandleListAudit handles GET /api/v1/audit for the active organization.
// Routed behind RequireRole(RoleAdmin).
func HandleListAudit(pool *pgxpool.Pool) http.HandlerFunc {
	reader := audit.NewReader(pool)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orgID := auth.GetOrgID(ctx)

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "limit must be an integer")
				return
			}
			limit = v
		}

		events, err := reader.ListByOrg(ctx, orgID, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit log")
			apperrors.WriteInternalError(w, r, "Failed to list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}
