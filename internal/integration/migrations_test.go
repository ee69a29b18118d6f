package integration

import (
	"context"
	"testing"

	"github.com/invoicething/invoicething/internal/db"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	for _, table := range []string{"users", "orgs", "customers", "services", "invoices", "invoice_items", "customer_invoices", "audit_log"} {
		var count int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "missing table %s", table)
	}

	applied, err := db.ApplyPending(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, applied, "second run must be a no-op")
}
