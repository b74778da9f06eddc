package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryanpereira49/RyAuth/internal/cache"
	"github.com/ryanpereira49/RyAuth/internal/metrics"
	"github.com/ryanpereira49/RyAuth/internal/models"
	"github.com/ryanpereira49/RyAuth/internal/pkg/log"
	"github.com/ryanpereira49/RyAuth/internal/pkg/redact"
	"github.com/ryanpereira49/RyAuth/internal/storage"
	"github.com/ryanpereira49/RyAuth/internal/token"
)

// RegisterUser регистрирует нового пользователя и возвращает его ID.
// Токены при регистрации не выпускаются: клиент проходит обычный вход.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	email, err := validateEmail(email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(password); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, email)
	if err == nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashed,
		Role:         models.DefaultRole,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		// Гонка двух регистраций на один email решается уникальным
		// индексом хранилища, а не предварительной проверкой выше.
		if errors.Is(err, storage.ErrAlreadyExists) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.Registrations.Inc()

	log.From(ctx).Info("user_registered",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	return user.ID, nil
}

// LoginUser выполняет вход по email+пароль.
//
// Обе причины отказа (нет пользователя / неверный пароль) возвращают один
// и тот же ErrInvalidCredentials и занимают статистически неразличимое
// время: при отсутствии пользователя пароль проверяется против decoy-хэша.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	email, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if password == "" {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Выравнивание времени: путь «нет пользователя» обязан
			// стоить столько же, сколько настоящая проверка пароля.
			s.hasher.Verify(ctx, s.hasher.Decoy(), password)

			metrics.Logins.WithLabelValues("failure").Inc()

			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(ctx, user.PasswordHash, password) {
		metrics.Logins.WithLabelValues("failure").Inc()

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.Logins.WithLabelValues("success").Inc()

	return pair, user.ID, nil
}

// RefreshToken обменивает живой refresh-токен на новую пару токенов.
//
// Протокол ротации:
//  1. Криптографическая проверка (подпись/срок/вид) — при отказе
//     ErrInvalidToken, хранилище не опрашивается.
//  2. Атомарный compare-and-revoke записи в хранилище: из конкурентных
//     вызовов по одному токену выигрывает ровно один.
//  3. Проигравший — как и любой предъявитель криптовалидного, но не живого
//     токена — трактуется как свидетельство компрометации: ВСЕ сессии
//     пользователя отзываются, и только затем возвращается ErrSessionRevoked.
//     Это срабатывает и на обычном истечении записи — осознанно
//     консервативная политика.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshToken"

	if len(refreshToken) < storage.MinTokenKeyLen {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, err := s.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		metrics.Refreshes.WithLabelValues("rejected").Inc()

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashRefreshToken(refreshToken)
	now := time.Now().UTC()

	// Кэш — только подсказка отзыва: по уже помеченному ключу каскад
	// запускается без условного UPDATE. Отсутствие записи или revoked=false
	// ничего не доказывает, источник истины — хранилище.
	if s.rcache != nil {
		if entry, ok, err := s.rcache.Get(ctx, hash); err == nil && ok && entry.Revoked {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, s.containBreach(ctx, userID))
		}
	}

	consumed, err := s.storage.ConsumeRefreshToken(ctx, hash, now)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !consumed {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, s.containBreach(ctx, userID))
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		_ = s.rcache.MarkRevoked(ctx, hash)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.Refreshes.WithLabelValues("success").Inc()

	return pair, user.ID, nil
}

// RevokeToken отзывает refresh-токен (logout). Идемпотентна: повторный
// отзыв и отзыв неизвестного токена — не ошибка.
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	const op = "service.auth.RevokeToken"

	if len(refreshToken) < storage.MinTokenKeyLen {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashRefreshToken(refreshToken)

	if err := s.storage.RevokeRefreshToken(ctx, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		_ = s.rcache.MarkRevoked(ctx, hash)
	}

	return nil
}

// ValidateToken проверяет access-токен и возвращает ID и роль пользователя.
func (s *Service) ValidateToken(_ context.Context, accessToken string) (uuid.UUID, string, error) {
	const op = "service.auth.ValidateToken"

	claims, err := s.codec.Verify(accessToken, token.KindAccess)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, claims.Role, nil
}

// containBreach отзывает все сессии пользователя и возвращает
// ErrSessionRevoked. Каскад — не необязательная уборка, а сама гарантия
// сдерживания: он обязан выполниться до возврата ошибки, даже притом что
// вызывающий увидит лишь общий отказ.
func (s *Service) containBreach(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.containBreach"

	hashes, err := s.storage.RevokeAllUserSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		for _, h := range hashes {
			_ = s.rcache.MarkRevoked(ctx, h)
		}
	}

	metrics.RefreshReuseDetected.Inc()
	metrics.Refreshes.WithLabelValues("rejected").Inc()
	metrics.SessionsRevoked.Add(float64(len(hashes)))

	log.From(ctx).Warn("refresh_reuse_detected",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.Int("sessions_revoked", len(hashes)),
	)

	return ErrSessionRevoked
}

// issueTokenPair выпускает пару access+refresh и сохраняет хэш
// refresh-токена как живую запись хранилища.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	access, accessExp, err := s.codec.SignAccess(user.ID, user.Role, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, refreshExp, err := s.codec.SignRefresh(user.ID, user.Role, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash := hashRefreshToken(refresh)

	record := &models.RefreshToken{
		TokenHash: hash,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: refreshExp,
		Revoked:   false,
	}

	if err := s.storage.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		entry := &cache.RefreshEntry{UserID: user.ID, ExpiresAt: refreshExp}
		_ = s.rcache.Set(ctx, hash, entry, refreshExp.Sub(now))
	}

	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
	}, nil
}

// hashRefreshToken возвращает ключ хранения refresh-токена:
// base64url(sha256(plaintext)). Plaintext в хранилище не попадает никогда.
func hashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// validateEmail проверяет базовый формат email и обрезает внешние пробелы.
// Регистр НЕ нормализуется: email — регистрозависимый ключ хранилища.
func validateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrInvalidEmail
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}

	return email, nil
}

// validatePassword проверяет политику пароля: непустой и не короче
// 8 символов. Требований к составу символов нет.
func validatePassword(pw string) error {
	if pw == "" {
		return ErrEmptyPassword
	}

	if len([]rune(pw)) < 8 {
		return ErrWeakPassword
	}

	return nil
}
