package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set(context.Background(), "key", "value", 0))

	var got string
	require.NoError(t, store.Get(context.Background(), "key", &got))
	require.Equal(t, "value", got)

	require.Error(t, store.Get(context.Background(), "missing", &got))
}

func TestMemoryStoreExpiry(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	current := base
	store := NewMemoryStore().WithClock(func() time.Time { return current })

	require.NoError(t, store.Set(context.Background(), "token", "abc", time.Hour))

	var got string
	require.NoError(t, store.Get(context.Background(), "token", &got))

	current = base.Add(2 * time.Hour)
	require.Error(t, store.Get(context.Background(), "token", &got))
}

func TestCourierTokenCacheKeyIsTenantScoped(t *testing.T) {
	a := GetCourierTokenCacheKey("client-1", "user")
	b := GetCourierTokenCacheKey("client-2", "user")
	c := GetCourierTokenCacheKey("client-1", "other")

	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, "courier:token:client-1:user", a)
}
