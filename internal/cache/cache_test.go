package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetThenGetRoundTrips(t *testing.T) {
	m := NewMemory(DefaultConfig())
	defer m.Close()

	require.NoError(t, m.Set(context.Background(), "k", "v", time.Minute))

	got, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestMemory_GetReturnsFalseAfterExpiration(t *testing.T) {
	m := NewMemory(DefaultConfig())
	defer m.Close()

	require.NoError(t, m.Set(context.Background(), "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_HasMatchesGetPresence(t *testing.T) {
	m := NewMemory(DefaultConfig())
	defer m.Close()

	has, err := m.Has(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.Set(context.Background(), "present", "v", time.Minute))
	has, err = m.Has(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMemory_DeleteRemovesKey(t *testing.T) {
	m := NewMemory(DefaultConfig())
	defer m.Close()

	require.NoError(t, m.Set(context.Background(), "k", "v", time.Minute))
	require.NoError(t, m.Delete(context.Background(), "k"))

	_, ok, _ := m.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemory_InvalidatePrefixRemovesOnlyMatchingKeys(t *testing.T) {
	m := NewMemory(DefaultConfig())
	defer m.Close()

	require.NoError(t, m.Set(context.Background(), "map:alpha:system:1", "v", time.Minute))
	require.NoError(t, m.Set(context.Background(), "map:alpha:character:1", "v", time.Minute))
	require.NoError(t, m.Set(context.Background(), "map:beta:system:1", "v", time.Minute))

	require.NoError(t, m.InvalidatePrefix(context.Background(), "map:alpha:"))

	assert.Equal(t, 1, m.Size())
	_, ok, _ := m.Get(context.Background(), "map:beta:system:1")
	assert.True(t, ok)
}

func TestMemory_SetWithZeroTTLUsesDefault(t *testing.T) {
	m := NewMemory(Config{DefaultTTL: 50 * time.Millisecond, CleanupInterval: time.Hour})
	defer m.Close()

	require.NoError(t, m.Set(context.Background(), "k", "v", 0))
	_, ok, _ := m.Get(context.Background(), "k")
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	_, ok, _ = m.Get(context.Background(), "k")
	assert.False(t, ok)
}
