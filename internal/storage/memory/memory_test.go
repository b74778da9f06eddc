package memory

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

func seedUser(t *testing.T, st *Storage, email string) uuid.UUID {
	t.Helper()
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.SaveUser(context.Background(), u))
	return u.ID
}

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

func TestSaveUser_DuplicateEmail_AndDefaultRole(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: "h1"}
	require.NoError(t, st.SaveUser(ctx, u))
	require.Equal(t, models.DefaultRole, u.Role)

	// Второй пользователь с тем же email — конфликт, первая запись не меняется.
	err := st.SaveUser(ctx, &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: "h2"})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := st.UserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "h1", got.PasswordHash)
}

func TestUserByEmail_CaseSensitiveKey(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	seedUser(t, st, "User@Example.com")

	got, err := st.UserByEmail(ctx, "User@Example.com")
	require.NoError(t, err)
	require.Equal(t, "User@Example.com", got.Email)

	// email — регистрозависимый ключ.
	_, err = st.UserByEmail(ctx, "user@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveRefreshToken_ShortKey(t *testing.T) {
	t.Parallel()

	st := New()
	err := st.SaveRefreshToken(context.Background(), &models.RefreshToken{
		TokenHash: "short",
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, storage.ErrInvalidKey)
}

func TestIsRefreshTokenValid_States(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	uid := seedUser(t, st, "a@example.com")
	now := time.Now().UTC()

	// Отсутствующий ключ — false без ошибки.
	ok, err := st.IsRefreshTokenValid(ctx, "missing-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Живая запись — true.
	seedToken(t, st, uid, "live-token-hash", time.Hour)
	ok, err = st.IsRefreshTokenValid(ctx, "live-token-hash", now)
	require.NoError(t, err)
	require.True(t, ok)

	// Просроченная — false.
	seedToken(t, st, uid, "expired-token-hash", -time.Minute)
	ok, err = st.IsRefreshTokenValid(ctx, "expired-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Отозванная — false.
	require.NoError(t, st.RevokeRefreshToken(ctx, "live-token-hash"))
	ok, err = st.IsRefreshTokenValid(ctx, "live-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveRefreshToken_ResaveRevokedKey_ResurrectsSlot(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	uid := seedUser(t, st, "a@example.com")
	now := time.Now().UTC()

	seedToken(t, st, uid, "recycled-token-hash", time.Hour)
	require.NoError(t, st.RevokeRefreshToken(ctx, "recycled-token-hash"))

	// Путь проверки НЕ воскрешает запись...
	ok, err := st.IsRefreshTokenValid(ctx, "recycled-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// ...а явное пересохранение — да (политика переиздания слота).
	seedToken(t, st, uid, "recycled-token-hash", time.Hour)
	ok, err = st.IsRefreshTokenValid(ctx, "recycled-token-hash", now)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConsumeRefreshToken_Transitions(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	uid := seedUser(t, st, "a@example.com")
	now := time.Now().UTC()

	seedToken(t, st, uid, "consume-token-hash", time.Hour)

	ok, err := st.ConsumeRefreshToken(ctx, "consume-token-hash", now)
	require.NoError(t, err)
	require.True(t, ok)

	// Повторное потребление того же ключа — false.
	ok, err = st.ConsumeRefreshToken(ctx, "consume-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Просроченный — false, не переводится в отозванные «живым» путём.
	seedToken(t, st, uid, "stale-token-hash", -time.Minute)
	ok, err = st.ConsumeRefreshToken(ctx, "stale-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Отсутствующий — false без ошибки.
	ok, err = st.ConsumeRefreshToken(ctx, "missing-token-hash", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsumeRefreshToken_SingleWinnerUnderConcurrency(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	uid := seedUser(t, st, "a@example.com")
	now := time.Now().UTC()

	seedToken(t, st, uid, "raced-token-hash", time.Hour)

	const n = 32
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
	require.Equal(t, 1, winners, "ровно один из конкурентов должен потребить токен")
}

func TestRevokeRefreshToken_Idempotent(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	// Отсутствующий ключ — no-op.
	require.NoError(t, st.RevokeRefreshToken(ctx, "missing-token-hash"))

	uid := seedUser(t, st, "a@example.com")
	seedToken(t, st, uid, "revoke-token-hash", time.Hour)

	require.NoError(t, st.RevokeRefreshToken(ctx, "revoke-token-hash"))
	require.NoError(t, st.RevokeRefreshToken(ctx, "revoke-token-hash"))
}

func TestRevokeAllUserSessions_ScopedToOwner(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	alice := seedUser(t, st, "alice@example.com")
	bob := seedUser(t, st, "bob@example.com")

	seedToken(t, st, alice, "alice-token-hash-1", time.Hour)
	seedToken(t, st, alice, "alice-token-hash-2", time.Hour)
	seedToken(t, st, bob, "bob-token-hash-1", time.Hour)

	revoked, err := st.RevokeAllUserSessions(ctx, alice)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice-token-hash-1", "alice-token-hash-2"}, revoked)

	ok, _ := st.IsRefreshTokenValid(ctx, "alice-token-hash-1", now)
	require.False(t, ok)
	ok, _ = st.IsRefreshTokenValid(ctx, "alice-token-hash-2", now)
	require.False(t, ok)

	// Чужие сессии не затронуты.
	ok, _ = st.IsRefreshTokenValid(ctx, "bob-token-hash-1", now)
	require.True(t, ok)

	// Идемпотентность: повторный вызов — пустой результат без ошибки.
	revoked, err = st.RevokeAllUserSessions(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, revoked)
}

func TestDeleteExpiredTokens(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	uid := seedUser(t, st, "a@example.com")
	now := time.Now().UTC()

	seedToken(t, st, uid, "fresh-token-hash", time.Hour)
	seedToken(t, st, uid, "stale-token-hash", -time.Minute)

	require.NoError(t, st.DeleteExpiredTokens(ctx, now))

	_, err := st.RefreshTokenByHash(ctx, "stale-token-hash")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.RefreshTokenByHash(ctx, "fresh-token-hash")
	require.NoError(t, err)
}
