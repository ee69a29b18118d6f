package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	RateLimitRPM int
	SessionDays  int

	SendGridAPIKey string
	MailFromEmail  string
	MailFromName   string

	RendererURL       string
	RendererTimeoutMS int

	S3Bucket   string
	S3Region   string
	S3Endpoint string

	AuditRetentionDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("INV_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("INV_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("INV_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("INV_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("INV_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("INV_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("INV_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("INV_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("INV_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("INV_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("INV_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("INV_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("INV_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("INV_RATE_LIMIT_RPM", 300)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM <= 0 {
		return nil, fmt.Errorf("INV_RATE_LIMIT_RPM must be positive (got: %d)", cfg.RateLimitRPM)
	}

	cfg.SessionDays, err = getEnvIntOrDefault("INV_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.SendGridAPIKey = strings.TrimSpace(os.Getenv("INV_SENDGRID_API_KEY"))
	if cfg.Env == "prod" && cfg.SendGridAPIKey == "" {
		return nil, fmt.Errorf("INV_SENDGRID_API_KEY is required in prod")
	}
	cfg.MailFromEmail = getEnvOrDefault("INV_MAIL_FROM_EMAIL", "billing@invoicething.local")
	cfg.MailFromName = getEnvOrDefault("INV_MAIL_FROM_NAME", "InvoiceThing")

	cfg.RendererURL = strings.TrimRight(strings.TrimSpace(os.Getenv("INV_RENDERER_URL")), "/")
	if cfg.Env == "prod" && cfg.RendererURL == "" {
		return nil, fmt.Errorf("INV_RENDERER_URL is required in prod")
	}

	cfg.RendererTimeoutMS, err = getEnvIntOrDefault("INV_RENDERER_TIMEOUT_MS", 20000)
	if err != nil {
		return nil, err
	}
	if cfg.RendererTimeoutMS <= 0 || cfg.RendererTimeoutMS > 120000 {
		return nil, fmt.Errorf("INV_RENDERER_TIMEOUT_MS must be between 1 and 120000 (got: %d)", cfg.RendererTimeoutMS)
	}

	cfg.S3Bucket = strings.TrimSpace(os.Getenv("INV_S3_BUCKET"))
	cfg.S3Region = getEnvOrDefault("INV_S3_REGION", "us-east-1")
	cfg.S3Endpoint = strings.TrimSpace(os.Getenv("INV_S3_ENDPOINT"))

	cfg.AuditRetentionDays, err = getEnvIntOrDefault("INV_AUDIT_RETENTION_DAYS", 365)
	if err != nil {
		return nil, err
	}
	if cfg.AuditRetentionDays < 1 {
		return nil, fmt.Errorf("INV_AUDIT_RETENTION_DAYS must be at least 1 (got: %d)", cfg.AuditRetentionDays)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// DocumentCacheEnabled reports whether rendered documents are cached in S3.
func (c *Config) DocumentCacheEnabled() bool {
	return c.S3Bucket != ""
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"INV_ENV":                  c.Env,
		"INV_HTTP_ADDR":            c.HTTPAddr,
		"INV_BASE_URL":             c.BaseURL,
		"INV_DB_DSN":               redactDSN(c.DBDSN),
		"INV_JWT_SECRET":           "[REDACTED]",
		"INV_LOG_LEVEL":            c.LogLevel,
		"INV_RATE_LIMIT_RPM":       strconv.Itoa(c.RateLimitRPM),
		"INV_SESSION_DAYS":         strconv.Itoa(c.SessionDays),
		"INV_SENDGRID_API_KEY":     redactSecret(c.SendGridAPIKey),
		"INV_MAIL_FROM_EMAIL":      c.MailFromEmail,
		"INV_MAIL_FROM_NAME":       c.MailFromName,
		"INV_RENDERER_URL":         c.RendererURL,
		"INV_RENDERER_TIMEOUT_MS":  strconv.Itoa(c.RendererTimeoutMS),
		"INV_S3_BUCKET":            c.S3Bucket,
		"INV_S3_REGION":            c.S3Region,
		"INV_S3_ENDPOINT":          c.S3Endpoint,
		"INV_AUDIT_RETENTION_DAYS": strconv.Itoa(c.AuditRetentionDays),
	}
}

func redactSecret(v string) string {
	if v == "" {
		return ""
	}
	return "[REDACTED]"
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
