package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is the subset of pgxpool.Pool the retention queries need.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DeleteOldAuditEvents deletes audit_log rows older than retentionDays.
// Invoices, including soft-deleted ones, are never touched: the ledger is the
// record. Safe to run repeatedly.
//
// Returns the number of rows deleted.
func DeleteOldAuditEvents(ctx context.Context, db Execer, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be at least 1 (got: %d)", retentionDays)
	}

	tag, err := db.Exec(ctx, `
		DELETE FROM audit_log
		WHERE created_at < NOW() - INTERVAL '1 day' * $1
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob is the entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, db Execer, auditDays int) error {
	log.Info().Int("audit_retention_days", auditDays).Msg("Starting retention job")

	startTime := time.Now()

	deleted, err := DeleteOldAuditEvents(ctx, db, auditDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete old audit events")
		return fmt.Errorf("audit cleanup failed: %w", err)
	}

	log.Info().
		Int64("audit_events_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed successfully")

	return nil
}
