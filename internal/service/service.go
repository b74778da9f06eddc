// service содержит бизнес-логику auth-сервиса: регистрацию и аутентификацию
// пользователей, ротацию refresh-токенов и сдерживание компрометации.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Машина состояний refresh-токена: Issued -> Rotated (успешный refresh)
//     или Revoked (logout / каскадный отзыв); Expired достигается по времени.
//     Единственная точка, требующая атомарности, — ConsumeRefreshToken:
//     переход Issued -> Rotated выполняется условным обновлением в хранилище,
//     поэтому из двух конкурентных refresh по одному токену выигрывает ровно один.
//   - Ошибки возвращаются обёрнутыми и далее маппятся транспортом на
//     HTTP-статусы (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/ryanpereira49/RyAuth/internal/cache"
	"github.com/ryanpereira49/RyAuth/internal/config"
	"github.com/ryanpereira49/RyAuth/internal/password"
	"github.com/ryanpereira49/RyAuth/internal/storage"
	"github.com/ryanpereira49/RyAuth/internal/token"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь
	// не найден. Сообщение намеренно общее: различать «нет такого
	// пользователя» и «неверный пароль» нельзя. Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — refresh-токен не прошёл криптографическую проверку:
	// формат, подпись, срок или вид. Хранилище при этом не опрашивается.
	// Транспорт: HTTP 401.
	ErrInvalidToken = errors.New("invalid refresh token")

	// ErrSessionRevoked — криптографически валидный refresh-токен не является
	// живой записью хранилища (повтор, ротация или истечение записи).
	// Возврату ошибки предшествует каскадный отзыв всех сессий пользователя.
	// Транспорт: HTTP 401.
	ErrSessionRevoked = errors.New("session revoked: please login again")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: HTTP 409.
	ErrEmailTaken = errors.New("user already exists")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль короче 8 символов.
	// Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	hasher  *password.Hasher
	codec   *token.Codec
	cfg     config.AuthConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(st storage.Storage, hasher *password.Hasher, codec *token.Codec, cfg config.AuthConfig) *Service {
	return &Service{
		storage: st,
		hasher:  hasher,
		codec:   codec,
		cfg:     cfg,
	}
}

// SetRefreshCache устанавливает кэш-подсказку отзыва refresh-токенов
// (опционально). Кэш никогда не подтверждает валидность токена — ему
// доверяют только флаг revoked; источником истины остаётся хранилище.
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
