package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDContextKey is the context key for storing user ID
	UserIDContextKey contextKey = "user_id"

	// OrgIDContextKey is the context key for storing the active org ID
	OrgIDContextKey contextKey = "org_id"
)

// AuthMiddleware validates the session token (bearer header or cookie) and
// injects the user and active org into the context. Invalid cookie sessions
// are cleared and the request continues unauthenticated.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Bool("bearer", bearer).Msg("Invalid session token")
				if !bearer {
					ClearSessionCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithIdentity(r.Context(), claims.UserID, claims.OrgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity returns a context carrying the user and active org.
func WithIdentity(ctx context.Context, userID, orgID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, UserIDContextKey, userID)
	return context.WithValue(ctx, OrgIDContextKey, orgID)
}

// RequireAuth returns 401 if the user is not authenticated.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOrg returns 403 if the session has no active organization. It must
// run after RequireAuth.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetOrgID(r.Context()) == uuid.Nil {
			apperrors.WriteError(w, r, http.StatusForbidden, "no_active_org", "Create or switch to an organization first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

// GetOrgID retrieves the active organization, or uuid.Nil.
func GetOrgID(ctx context.Context) uuid.UUID {
	orgID, ok := ctx.Value(OrgIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return orgID
}
