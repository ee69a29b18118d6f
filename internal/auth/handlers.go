package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/audit"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// SessionSettings controls how sessions are issued.
type SessionSettings struct {
	Secret       string
	Days         int
	IsProduction bool
}

// Credentials is the signup/login request payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse describes the issued session. Token is returned for
// bearer clients; browsers use the cookie.
type SessionResponse struct {
	UserID uuid.UUID  `json:"user_id"`
	Email  string     `json:"email,omitempty"`
	OrgID  *uuid.UUID `json:"org_id,omitempty"`
	Token  string     `json:"token"`
}

// SwitchOrgRequest is the switch-org payload.
type SwitchOrgRequest struct {
	OrgID uuid.UUID `json:"org_id"`
}

// IssueSession signs a token for the user and active org, sets the cookie
// and returns the response body.
func IssueSession(w http.ResponseWriter, settings SessionSettings, userID, orgID uuid.UUID) (*SessionResponse, error) {
	token, err := CreateToken(userID, orgID, settings.Secret, settings.Days)
	if err != nil {
		return nil, err
	}
	SetSessionCookie(w, token, settings.Days, settings.IsProduction)

	resp := &SessionResponse{UserID: userID, Token: token}
	if orgID != uuid.Nil {
		resp.OrgID = &orgID
	}
	return resp, nil
}

// HandleSignup handles POST /api/v1/auth/signup
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, settings SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Credentials
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.Email("email", req.Email)
		if err != nil {
			apperrors.WriteValidationError(w, r, err.Error())
			return
		}
		if err := ValidatePassword(req.Password); err != nil {
			apperrors.WriteValidationError(w, r, err.Error())
			return
		}

		userID, err := NewService(pool).CreateUser(r.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			log.Error().Err(err).Msg("Failed to create user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(r.Context(), userID, email); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to create audit log")
		}

		resp, err := IssueSession(w, settings, userID, uuid.Nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		resp.Email = email

		log.Info().Str("user_id", userID.String()).Msg("User signed up successfully")
		apperrors.WriteSuccess(w, r, http.StatusCreated, resp)
	}
}

// HandleLogin handles POST /api/v1/auth/login. The session's active org is
// the user's most recently joined organization.
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, settings SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Credentials
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		svc := NewService(pool)
		userID, err := svc.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				if err := auditor.LogLoginFailed(r.Context(), normalizeEmail(req.Email), r.RemoteAddr); err != nil {
					log.Error().Err(err).Msg("Failed to create audit log")
				}
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Msg("Failed to authenticate user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		orgID, err := svc.DefaultOrg(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to resolve default org")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		resp, err := IssueSession(w, settings, userID, orgID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		resp.Email = normalizeEmail(req.Email)

		log.Info().Str("user_id", userID.String()).Msg("User logged in successfully")
		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// HandleLogout handles POST /api/v1/auth/logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	if userID := GetUserID(r.Context()); userID != uuid.Nil {
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}

// HandleSwitchOrg handles POST /api/v1/auth/switch-org
func HandleSwitchOrg(pool *pgxpool.Pool, settings SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := GetUserID(r.Context())

		var req SwitchOrgRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrgID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "org_id is required")
			return
		}

		if err := NewService(pool).CheckMembership(r.Context(), userID, req.OrgID); err != nil {
			if errors.Is(err, ErrNotMember) {
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Failed to switch organization")
			return
		}

		resp, err := IssueSession(w, settings, userID, req.OrgID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// HandleCSRFToken handles GET /api/v1/auth/csrf. It issues a fresh token in
// the _csrf cookie and echoes it for the client to send back as a header.
func HandleCSRFToken(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := GenerateCSRFToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to generate CSRF token")
			return
		}
		SetCSRFCookie(w, token, isProduction)
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{"csrf_token": token})
	}
}
