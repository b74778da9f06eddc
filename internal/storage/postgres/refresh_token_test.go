package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ryanpereira49/RyAuth/internal/models"
	"github.com/ryanpereira49/RyAuth/internal/storage"
)

func seedToken(t *testing.T, st *Storage, userID uuid.UUID, hash string, ttl time.Duration) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.SaveRefreshToken(context.Background(), &models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}))
}

func TestIntegration_SaveRefreshToken_And_GetByHash_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, st, "token-owner@example.com")

	now := time.Now().UTC()
	rt := &models.RefreshToken{
		TokenHash: "integration-token-hash-1",
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.SaveRefreshToken(ctx, rt))

	got, err := st.RefreshTokenByHash(ctx, rt.TokenHash)
	require.NoError(t, err)
	require.Equal(t, rt.TokenHash, got.TokenHash)
	require.Equal(t, userID, got.UserID)
	require.False(t, got.Revoked)
	require.WithinDuration(t, rt.ExpiresAt, got.ExpiresAt, time.Second)

	ok, err := st.IsRefreshTokenValid(ctx, rt.TokenHash, now)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIntegration_SaveRefreshToken_ShortKey(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	err := st.SaveRefreshToken(context.Background(), &models.RefreshToken{
		TokenHash: "short",
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, storage.ErrInvalidKey)
}

// TestIntegration_Resave_ResurrectsRevokedSlot — upsert по token_hash
// возвращает отозванный слот в живое состояние.
func TestIntegration_Resave_ResurrectsRevokedSlot(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, st, "recycle@example.com")
	now := time.Now().UTC()

	seedToken(t, st, userID, "recycled-token-hash", time.Hour)
	require.NoError(t, st.RevokeRefreshToken(ctx, "recycled-token-hash"))

	ok, err := st.IsRefreshTokenValid(ctx, "recycled-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	seedToken(t, st, userID, "recycled-token-hash", time.Hour)
	ok, err = st.IsRefreshTokenValid(ctx, "recycled-token-hash", now)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIntegration_IsRefreshTokenValid_MissingExpiredRevoked(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, st, "states@example.com")
	now := time.Now().UTC()

	// Отсутствующий ключ — false без ошибки.
	ok, err := st.IsRefreshTokenValid(ctx, "missing-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Просроченный.
	seedToken(t, st, userID, "expired-token-hash", -time.Minute)
	ok, err = st.IsRefreshTokenValid(ctx, "expired-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Отозванный.
	seedToken(t, st, userID, "revoked-token-hash", time.Hour)
	require.NoError(t, st.RevokeRefreshToken(ctx, "revoked-token-hash"))
	ok, err = st.IsRefreshTokenValid(ctx, "revoked-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestIntegration_ConsumeRefreshToken_SingleWinner — условный UPDATE
// гарантирует ровно одного победителя среди конкурентных потребителей.
func TestIntegration_ConsumeRefreshToken_SingleWinner(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, st, "race@example.com")
	now := time.Now().UTC()

	seedToken(t, st, userID, "raced-token-hash", time.Hour)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	wins := make(chan bool, n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ok, err := st.ConsumeRefreshToken(ctx, "raced-token-hash", now)
			require.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestIntegration_ConsumeRefreshToken_ExpiredAndMissing(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, st, "stale@example.com")
	now := time.Now().UTC()

	seedToken(t, st, userID, "stale-token-hash", -time.Minute)

	ok, err := st.ConsumeRefreshToken(ctx, "stale-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.ConsumeRefreshToken(ctx, "missing-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegration_RevokeAllUserSessions_ScopedToOwner(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	alice := seedUser(t, st, "alice@example.com")
	bob := seedUser(t, st, "bob@example.com")
	now := time.Now().UTC()

	seedToken(t, st, alice, "alice-token-hash-1", time.Hour)
	seedToken(t, st, alice, "alice-token-hash-2", time.Hour)
	seedToken(t, st, bob, "bob-token-hash-1", time.Hour)

	revoked, err := st.RevokeAllUserSessions(ctx, alice)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice-token-hash-1", "alice-token-hash-2"}, revoked)

	ok, err := st.IsRefreshTokenValid(ctx, "bob-token-hash-1", now)
	require.NoError(t, err)
	require.True(t, ok)

	// Идемпотентность.
	revoked, err = st.RevokeAllUserSessions(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, revoked)
}

func TestIntegration_DeleteExpiredTokens(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, st, "janitor@example.com")
	now := time.Now().UTC()

	seedToken(t, st, userID, "fresh-token-hash", time.Hour)
	seedToken(t, st, userID, "dead-token-hash", -time.Minute)

	require.NoError(t, st.DeleteExpiredTokens(ctx, now))

	_, err := st.RefreshTokenByHash(ctx, "dead-token-hash")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.RefreshTokenByHash(ctx, "fresh-token-hash")
	require.NoError(t, err)
}
