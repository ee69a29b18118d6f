package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/invoicething/invoicething/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var migrationsFS fs.ReadDirFS = migrations.FS

// RunMigrations applies all pending database migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := ApplyPending(ctx, pool)
	return err
}

// ApplyPending applies every embedded migration not yet recorded in
// schema_migrations, in lexical order.
func ApplyPending(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	log.Info().Msg("Running database migrations...")

	if err := createMigrationsTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := MigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var newlyApplied []string
	for _, migration := range files {
		if applied[migration] {
			log.Debug().Str("migration", migration).Msg("Migration already applied, skipping")
			continue
		}

		log.Info().Str("migration", migration).Msg("Applying migration")
		if err := applyMigration(ctx, pool, migration); err != nil {
			return newlyApplied, fmt.Errorf("failed to apply migration %s: %w", migration, err)
		}
		newlyApplied = append(newlyApplied, migration)
	}

	log.Info().Int("applied", len(newlyApplied)).Msg("All migrations applied successfully")
	return newlyApplied, nil
}

// MigrationFiles returns the sorted names of the embedded migration files.
func MigrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}

func createMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration runs one file and records it inside a single transaction so a
// failed file leaves no partial schema behind.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, migration string) error {
	content, err := fs.ReadFile(migrationsFS, migration)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	// Simple query protocol so a file may hold several statements.
	script := "BEGIN;\n" + string(content) + "\n;INSERT INTO schema_migrations (version) VALUES ('" +
		strings.ReplaceAll(migration, "'", "''") + "');\nCOMMIT;"

	if _, err := conn.Conn().PgConn().Exec(ctx, script).ReadAll(); err != nil {
		_, _ = conn.Conn().PgConn().Exec(ctx, "ROLLBACK").ReadAll()
		return err
	}
	return nil
}
