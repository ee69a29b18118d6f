package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/invoicething/invoicething/internal/apperrors"
	"github.com/invoicething/invoicething/internal/audit"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/invoicething/invoicething/internal/catalog"
	"github.com/invoicething/invoicething/internal/config"
	"github.com/invoicething/invoicething/internal/customers"
	"github.com/invoicething/invoicething/internal/documents"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/invoicething/invoicething/internal/orgs"
	"github.com/invoicething/invoicething/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, ledger *invoices.Service, docs *documents.Service) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()
	session := auth.SessionSettings{
		Secret:       cfg.JWTSecret,
		Days:         cfg.SessionDays,
		IsProduction: isProduction,
	}

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	auditor := audit.NewWriter(pool)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// Public invoice pages: the pay link from emails and the print view the
	// document renderer loads.
	r.Group(func(r chi.Router) {
		r.Use(NoCacheMiddleware)
		r.Get("/invoice/{invoice_id}", web.HandleInvoicePage(ledger))
		r.Get("/invoice/{invoice_id}/print", web.HandlePrintPage(ledger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(APIRateLimitMiddleware(cfg.RateLimitRPM))
		r.Use(CSRFMiddleware)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf", auth.HandleCSRFToken(isProduction))
			r.Post("/signup", auth.HandleSignup(pool, auditor, session))
			r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(pool, auditor, session))
			r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout)
			r.With(auth.RequireAuth).Post("/switch-org", auth.HandleSwitchOrg(pool, session))
		})

		r.Route("/orgs", func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Post("/", orgs.HandleCreate(pool, auditor, session))
			r.Get("/", orgs.HandleList(pool))
			r.Get("/{org_id}/members", orgs.HandleListMembers(pool))
		})

		// Unscoped reads by unguessable id.
		r.Get("/invoices/{invoice_id}", invoices.HandleGet(ledger))
		r.Get("/invoices/{invoice_id}/pdf", documents.HandleDownload(docs))

		// Everything below acts on the session's active organization.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Use(auth.RequireOrg)
			r.Use(orgs.RequireActiveMember(pool))

			r.Get("/customers", customers.HandleList(pool))
			r.Get("/customers/search", customers.HandleSearch(pool))
			r.Get("/customers/{customer_id}", customers.HandleGet(pool))

			r.Get("/services", catalog.HandleList(pool))
			r.Get("/services/search", catalog.HandleSearch(pool))
			r.Get("/services/by-ids", catalog.HandleByIDs(pool))

			r.Get("/invoices", invoices.HandleList(ledger))

			r.With(orgs.RequireRole(orgs.RoleAdmin)).Get("/audit", orgs.HandleListAudit(pool))

			r.Group(func(r chi.Router) {
				r.Use(orgs.RequireRole(orgs.RoleMember))

				r.Post("/customers", customers.HandleCreate(pool, auditor))
				r.Post("/services", catalog.HandleCreate(pool, auditor))

				r.Post("/invoices", invoices.HandleCreate(ledger, auditor))
				r.Post("/invoices/{invoice_id}/services", invoices.HandleAddService(ledger, auditor))
				r.Delete("/invoices/{invoice_id}/services/{service_id}", invoices.HandleRemoveService(ledger, auditor))
				r.Post("/invoices/{invoice_id}/customers", invoices.HandleAddCustomer(ledger, auditor))
				r.Delete("/invoices/{invoice_id}/customers/{customer_id}", invoices.HandleRemoveCustomer(ledger, auditor))
				r.Post("/invoices/{invoice_id}/send", invoices.HandleTransition(ledger, auditor, invoices.ActionSend))
				r.Post("/invoices/{invoice_id}/pay", invoices.HandleTransition(ledger, auditor, invoices.ActionPay))
				r.Post("/invoices/{invoice_id}/cancel", invoices.HandleTransition(ledger, auditor, invoices.ActionCancel))
				r.Delete("/invoices/{invoice_id}", invoices.HandleTransition(ledger, auditor, invoices.ActionDelete))
			})
		})
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
