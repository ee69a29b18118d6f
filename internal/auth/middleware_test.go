package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-length-000"

func identityEcho(t *testing.T, wantUser, wantOrg uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, wantUser, GetUserID(r.Context()))
		require.Equal(t, wantOrg, GetOrgID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	userID, orgID := uuid.New(), uuid.New()
	token, err := CreateToken(userID, orgID, testSecret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	AuthMiddleware(testSecret)(identityEcho(t, userID, orgID)).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthMiddleware_Cookie(t *testing.T) {
	userID := uuid.New()
	token, err := CreateToken(userID, uuid.Nil, testSecret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()

	AuthMiddleware(testSecret)(identityEcho(t, userID, uuid.Nil)).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthMiddleware_InvalidCookieIsCleared(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()

	AuthMiddleware(testSecret)(identityEcho(t, uuid.Nil, uuid.Nil)).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, rec.Header().Get("Set-Cookie"), SessionCookieName+"=;")
}

func TestRequireAuthAndOrg(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth(RequireOrg(ok))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), uuid.New(), uuid.Nil))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "no_active_org")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), uuid.New(), uuid.New()))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateCSRF(t *testing.T) {
	token, err := GenerateCSRFToken()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.Error(t, ValidateCSRF(req))

	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	require.Error(t, ValidateCSRF(req))

	req.Header.Set(CSRFHeaderName, "other")
	require.Error(t, ValidateCSRF(req))

	req.Header.Set(CSRFHeaderName, token)
	require.NoError(t, ValidateCSRF(req))
}

func TestValidatePassword(t *testing.T) {
	require.Error(t, ValidatePassword("short"))
	require.NoError(t, ValidatePassword("long-enough"))
}
