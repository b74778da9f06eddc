package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ryanpereira49/RyAuth/internal/models"
	"github.com/ryanpereira49/RyAuth/internal/storage"
)

// SaveRefreshToken сохраняет запись как живую. Upsert по token_hash:
// пересохранение ранее отозванного ключа сбрасывает revoked и обновляет
// владельца/срок — политика переиздания слота. Это ЕДИНСТВЕННЫЙ путь,
// которым revoked может вернуться в FALSE.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	if len(token.TokenHash) < storage.MinTokenKeyLen {
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidKey)
	}

	query := `
        INSERT INTO refresh_tokens(token_hash, user_id, created_at, expires_at, revoked)
        VALUES ($1, $2, $3, $4, FALSE)
        ON CONFLICT (token_hash) DO UPDATE
        SET user_id = EXCLUDED.user_id,
            created_at = EXCLUDED.created_at,
            expires_at = EXCLUDED.expires_at,
            revoked = FALSE
    `

	_, err := s.db.Exec(ctx, query,
		token.TokenHash,
		token.UserID,
		token.CreatedAt,
		token.ExpiresAt,
	)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит запись по ключу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
        SELECT token_hash, user_id, created_at, expires_at, revoked
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&token.TokenHash,
		&token.UserID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// IsRefreshTokenValid сообщает, жива ли запись: присутствует, не отозвана,
// не истекла. Отсутствие записи — false без ошибки.
func (s *Storage) IsRefreshTokenValid(ctx context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.IsRefreshTokenValid"

	query := `
        SELECT revoked = FALSE AND expires_at > $2
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	var live bool
	err := s.db.QueryRow(ctx, query, hash, now).Scan(&live)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return live, nil
}

// ConsumeRefreshToken — атомарный compare-and-revoke: условный UPDATE
// переводит запись в отозванные, только если она жива в момент now.
// Из конкурентных вызовов ровно один увидит затронутую строку; наивная
// последовательность «прочитал — проверил — пометил» здесь недопустима.
func (s *Storage) ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.ConsumeRefreshToken"

	query := `
        UPDATE refresh_tokens
        SET revoked = TRUE
        WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
    `

	cmdTag, err := s.db.Exec(ctx, query, hash, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// RevokeRefreshToken помечает запись отозванной. Идемпотентна: отсутствие
// записи и повторный вызов — no-op без ошибки.
func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string) error {
	const op = "storage.postgres.RevokeRefreshToken"

	query := `
        UPDATE refresh_tokens
        SET revoked = TRUE
        WHERE token_hash = $1
    `

	if _, err := s.db.Exec(ctx, query, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAllUserSessions отзывает все живые записи пользователя и возвращает
// их ключи. Идемпотентна.
func (s *Storage) RevokeAllUserSessions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	const op = "storage.postgres.RevokeAllUserSessions"

	query := `
        UPDATE refresh_tokens
        SET revoked = TRUE
        WHERE user_id = $1 AND revoked = FALSE
        RETURNING token_hash
    `

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var revoked []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		revoked = append(revoked, hash)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}

// DeleteExpiredTokens удаляет все просроченные записи. Безопасно для
// конкурентной ротации: ConsumeRefreshToken требует expires_at > now,
// поэтому удаление просроченной строки ничего не «воскрешает».
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	if _, err := s.db.Exec(ctx, query, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
