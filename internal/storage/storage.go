// storage задаёт контракт долговременного хранилища пользователей и
// refresh-токенов. Реализации: postgres (боевая) и memory (эталонная,
// для тестов); любая другая обязана соблюдать те же гарантии —
// прежде всего атомарность ConsumeRefreshToken.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ryanpereira49/RyAuth/internal/models"
)

// MinTokenKeyLen — минимальная длина ключа refresh-токена.
// Более короткий ключ — ошибка вызывающего кода, а не «не найдено».
const MinTokenKeyLen = 10

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidKey — ключ refresh-токена короче MinTokenKeyLen.
	ErrInvalidKey = errors.New("token key too short")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя. Пустая роль заменяется на
	// models.DefaultRole. Повтор email — ErrAlreadyExists; запись первого
	// пользователя при этом не меняется.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (регистрозависимо).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
// Все операции принимают ключ (хэш токена), не plaintext.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет запись как живую (revoked=false).
	// Повторное сохранение ранее отозванного ключа возвращает его в
	// живое состояние — осознанная политика переиздания слота; сбросить
	// revoked может ТОЛЬКО этот путь, но никогда не путь проверки.
	// Ключ короче MinTokenKeyLen — ErrInvalidKey.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// RefreshTokenByHash находит запись по ключу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)

	// IsRefreshTokenValid сообщает, жива ли запись: присутствует,
	// не отозвана и не истекла. Отсутствие записи — это false, не ошибка.
	IsRefreshTokenValid(ctx context.Context, hash string, now time.Time) (bool, error)

	// ConsumeRefreshToken — атомарный compare-and-revoke: переводит запись
	// из живого состояния в отозванное, только если она жива в момент now.
	// Из N конкурентных вызовов на один ключ ровно один получает true;
	// остальные — false. Отсутствие записи — false, не ошибка.
	ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeRefreshToken помечает запись отозванной. Идемпотентна:
	// повторный вызов и вызов для отсутствующего ключа — no-op без ошибки.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// RevokeAllUserSessions отзывает все живые записи пользователя и
	// возвращает их ключи (для инвалидации кэшей). Идемпотентна; если
	// живых записей нет — пустой срез без ошибки.
	RevokeAllUserSessions(ctx context.Context, userID uuid.UUID) ([]string, error)

	// DeleteExpiredTokens удаляет все просроченные записи.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
