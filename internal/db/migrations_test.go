package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedAndSQLOnly(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql", "0002_invoicing.sql"}, files)
}
