package audit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	require.Equal(t, 50, ClampLimit(0))
	require.Equal(t, 50, ClampLimit(-3))
	require.Equal(t, 10, ClampLimit(10))
	require.Equal(t, 200, ClampLimit(500))
}

func TestToNullUUID(t *testing.T) {
	require.False(t, toNullUUID(nil).Valid)

	id := uuid.New()
	got := toNullUUID(&id)
	require.True(t, got.Valid)
	require.Equal(t, id, got.UUID)
}
