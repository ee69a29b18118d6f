package orgs

import (
	"context"
	"errors"
	"net/http"

	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type contextKey string

const roleContextKey contextKey = "org_role"

// RequireActiveMember re-checks that the session's active org still lists
// the user as a member and stores the role in the context. It must run
// after auth.RequireOrg.
func RequireActiveMember(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	service := NewService(pool)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role, err := service.GetUserOrgRole(ctx, auth.GetUserID(ctx), auth.GetOrgID(ctx))
			if err != nil {
				if errors.Is(err, ErrNotMember) {
					apperrors.WriteForbidden(w, r, "Not a member of the active organization")
					return
				}
				log.Error().Err(err).Msg("Failed to check org membership")
				apperrors.WriteInternalError(w, r, "Failed to check permissions")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(ctx, role)))
		})
	}
}

// RequireRole rejects callers whose role in the active org is below min.
func RequireRole(min OrgRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			if !role.Satisfies(min) {
				log.Warn().
					Str("user_id", auth.GetUserID(r.Context()).String()).
					Str("user_role", string(role)).
					Str("required_role", string(min)).
					Msg("RBAC: Insufficient permissions")
				apperrors.WriteForbidden(w, r, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithRole returns a context carrying the caller's role in the active org.
func WithRole(ctx context.Context, role OrgRole) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

// GetRole returns the caller's role in the active org, or "".
func GetRole(ctx context.Context) OrgRole {
	role, _ := ctx.Value(roleContextKey).(OrgRole)
	return role
}
