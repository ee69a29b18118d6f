package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/invoicething/invoicething/internal/config"
	"github.com/invoicething/invoicething/internal/db"
	"github.com/invoicething/invoicething/internal/documents"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/invoicething/invoicething/internal/mailer"
	"github.com/invoicething/invoicething/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config    *config.Config
	DB        *pgxpool.Pool
	Ledger    *invoices.Service
	Documents *documents.Service
	Router    http.Handler

	server *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing InvoiceThing application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN, db.DefaultPoolOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	// Run migrations if in dev mode
	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	if err := web.InitTemplates(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}

	app, err := build(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// build assembles the ledger, its collaborators and the router on top of an
// open pool.
func build(pool *pgxpool.Pool, cfg *config.Config) (*App, error) {
	cache, err := newDocumentCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document cache: %w", err)
	}

	printer := documents.NewChromiumPrinter(cfg.RendererURL, time.Duration(cfg.RendererTimeoutMS)*time.Millisecond)

	// Document rendering only reads invoices, so it gets a ledger without
	// rendering or mail; the full ledger then renders through it.
	reader := invoices.NewService(pool, nil, nil, cfg.BaseURL)
	docs := documents.NewService(reader, printer, cache, cfg.BaseURL)
	ledger := invoices.NewService(pool, docs, newSender(cfg), cfg.BaseURL)

	return &App{
		Config:    cfg,
		DB:        pool,
		Ledger:    ledger,
		Documents: docs,
		Router:    NewRouter(pool, cfg, ledger, docs),
	}, nil
}

func newSender(cfg *config.Config) mailer.Sender {
	if cfg.SendGridAPIKey == "" {
		log.Warn().Msg("INV_SENDGRID_API_KEY not set: invoice emails are logged, not delivered")
		return mailer.LogSender{}
	}
	return mailer.NewSendGridSender(mailer.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.MailFromEmail,
		FromName:  cfg.MailFromName,
	})
}

func newDocumentCache(cfg *config.Config) (documents.Cache, error) {
	if !cfg.DocumentCacheEnabled() {
		log.Info().Msg("Document cache disabled (INV_S3_BUCKET not set)")
		return documents.NoCache{}, nil
	}
	log.Info().Str("bucket", cfg.S3Bucket).Str("region", cfg.S3Region).Msg("Document cache enabled")
	return documents.NewS3Cache(documents.S3Config{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	})
}

// Start starts the HTTP server and blocks until it stops. A graceful
// Shutdown makes it return nil.
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	log.Info().Msg("Shutting down HTTP server")
	return a.server.Shutdown(ctx)
}

// Close releases the database pool.
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
}

// setupLogger configures the global logger: console output in dev, JSON
// lines otherwise.
func setupLogger(level string, dev bool) {
	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
