// memory — эталонная потокобезопасная реализация контракта storage
// поверх map под мьютексом. Используется в тестах жизненного цикла
// ротации и как образец семантики для любых боевых бэкендов:
// в частности, ConsumeRefreshToken здесь атомарен по построению —
// проверка живости и пометка revoked выполняются под одним мьютексом.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryanpereira49/RyAuth/internal/models"
	"github.com/ryanpereira49/RyAuth/internal/storage"
)

type Storage struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
	byID    map[uuid.UUID]*models.User
	tokens  map[string]*models.RefreshToken
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		byEmail: make(map[string]*models.User),
		byID:    make(map[uuid.UUID]*models.User),
		tokens:  make(map[string]*models.RefreshToken),
	}
}

// Close ничего не освобождает; метод нужен для соответствия контракту.
func (s *Storage) Close() {}

// SaveUser создаёт нового пользователя.
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	u := *user
	if u.Role == "" {
		u.Role = models.DefaultRole
	}

	s.byEmail[u.Email] = &u
	s.byID[u.ID] = &u

	// роль по умолчанию видна и вызывающему коду.
	user.Role = u.Role

	return nil
}

// UserByEmail находит пользователя по email (регистрозависимо).
func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

// SaveRefreshToken сохраняет (или пересохраняет) запись как живую.
func (s *Storage) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	const op = "storage.memory.SaveRefreshToken"

	if len(token.TokenHash) < storage.MinTokenKeyLen {
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	cp.Revoked = false
	s.tokens[cp.TokenHash] = &cp

	return nil
}

// RefreshTokenByHash находит запись по ключу.
func (s *Storage) RefreshTokenByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.memory.RefreshTokenByHash"

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *t
	return &cp, nil
}

// IsRefreshTokenValid сообщает, жива ли запись. Отсутствие — false без ошибки.
func (s *Storage) IsRefreshTokenValid(_ context.Context, hash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return false, nil
	}

	return t.Live(now), nil
}

// ConsumeRefreshToken — атомарный compare-and-revoke под мьютексом.
func (s *Storage) ConsumeRefreshToken(_ context.Context, hash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok || !t.Live(now) {
		return false, nil
	}

	t.Revoked = true
	return true, nil
}

// RevokeRefreshToken помечает запись отозванной; идемпотентна.
func (s *Storage) RevokeRefreshToken(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[hash]; ok {
		t.Revoked = true
	}

	return nil
}

// RevokeAllUserSessions отзывает все живые записи пользователя.
func (s *Storage) RevokeAllUserSessions(_ context.Context, userID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked []string
	for hash, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			revoked = append(revoked, hash)
		}
	}

	return revoked, nil
}

// DeleteExpiredTokens удаляет просроченные записи.
func (s *Storage) DeleteExpiredTokens(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, t := range s.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(s.tokens, hash)
		}
	}

	return nil
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
