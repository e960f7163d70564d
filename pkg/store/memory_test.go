package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetOnline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetOnline(ctx, "a", true))
	require.NoError(t, s.SetOnline(ctx, "b", true))
	require.NoError(t, s.SetOnline(ctx, "b", false))

	assert.True(t, s.IsOnline("a"))
	assert.False(t, s.IsOnline("b"))
	assert.False(t, s.IsOnline("never-seen"))
}

func TestMemoryStoreMarkAllOffline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetOnline(ctx, "a", true))
	require.NoError(t, s.SetOnline(ctx, "b", true))
	require.NoError(t, s.SetOnline(ctx, "c", false))

	affected, err := s.MarkAllOffline(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.False(t, s.IsOnline("a"))
	assert.False(t, s.IsOnline("b"))

	// Second pass finds nothing left to flip.
	affected, err = s.MarkAllOffline(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}
