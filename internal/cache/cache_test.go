package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) RefreshCache {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestGet_MissingKey(t *testing.T) {
	c := newTestCache(t)

	_, ok, err := c.Get(context.Background(), "missing-token-hash")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetAndGet_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	uid := uuid.New()
	exp := time.Now().Add(time.Hour).Truncate(time.Second).UTC()

	require.NoError(t, c.Set(ctx, "live-token-hash", &RefreshEntry{
		UserID:    uid,
		Revoked:   false,
		ExpiresAt: exp,
	}, time.Hour))

	e, ok, err := c.Get(ctx, "live-token-hash")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uid, e.UserID)
	require.False(t, e.Revoked)
	require.Equal(t, exp, e.ExpiresAt)
}

func TestMarkRevoked_FlagVisibleOnGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "revoked-token-hash", &RefreshEntry{
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}, time.Hour))

	require.NoError(t, c.MarkRevoked(ctx, "revoked-token-hash"))

	e, ok, err := c.Get(ctx, "revoked-token-hash")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, e.Revoked)
}

func TestNewRedisCache_BadURL_And_DeadServer(t *testing.T) {
	_, err := NewRedisCache("not-a-url", "")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisCache("redis://"+addr, "")
	require.Error(t, err)
}
