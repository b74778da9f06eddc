package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ryanpereira49/RyAuth/internal/models"
	"github.com/ryanpereira49/RyAuth/internal/storage"
	"github.com/ryanpereira49/RyAuth/migrations"
)

// startPostgres поднимает временный экземпляр PostgreSQL через
// testcontainers-go, применяет goose-миграции и возвращает
// инициализированное хранилище с функцией очистки.
// Если переменная окружения GO_TEST_INTEGRATION не установлена —
// тест пропускается.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	// применяем миграции через goose.
	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("pgx"))
	require.NoError(t, goose.UpContext(ctx, sqlDB, "."))
	require.NoError(t, sqlDB.Close())

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

// seedUser создаёт пользователя.
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

// TestIntegration_SaveUser_And_Lookup_OK — happy-path: сохранение
// пользователя, поиск по email и ID, роль по умолчанию.
func TestIntegration_SaveUser_And_Lookup_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Email:        "User@Example.Com",
		PasswordHash: "hash",
		CreatedAt:    now,
	}

	require.NoError(t, st.SaveUser(context.Background(), u))

	gotByEmail, err := st.UserByEmail(context.Background(), "User@Example.Com")
	require.NoError(t, err)
	require.Equal(t, "User@Example.Com", gotByEmail.Email)
	require.Equal(t, models.DefaultRole, gotByEmail.Role)
	require.WithinDuration(t, u.CreatedAt, gotByEmail.CreatedAt, time.Second)

	gotByID, err := st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, gotByID.ID)
}

// TestIntegration_UserByEmail_CaseSensitive — ключ email регистрозависим:
// поиск в другом регистре не находит запись.
func TestIntegration_UserByEmail_CaseSensitive(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	seedUser(t, st, "User@Example.Com")

	_, err := st.UserByEmail(context.Background(), "user@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_SaveUser_DuplicateEmail — конфликт уникальности
// транслируется в storage.ErrAlreadyExists, первая запись не меняется.
func TestIntegration_SaveUser_DuplicateEmail(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	first := &models.User{
		ID:           uuid.New(),
		Email:        "dup@example.com",
		PasswordHash: "hash-1",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.SaveUser(ctx, first))

	err := st.SaveUser(ctx, &models.User{
		ID:           uuid.New(),
		Email:        "dup@example.com",
		PasswordHash: "hash-2",
		CreatedAt:    time.Now().UTC(),
	})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := st.UserByEmail(ctx, "dup@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "hash-1", got.PasswordHash)
}

// TestIntegration_UserLookups_NotFound — отсутствующие записи.
func TestIntegration_UserLookups_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.UserByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}
