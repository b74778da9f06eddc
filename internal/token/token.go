// token реализует выпуск и проверку подписанных токенов двух видов:
// короткоживущих access и долгоживущих refresh.
//
// Основные аспекты:
//   - Каждый вид подписывается СВОИМ секретом (HS256): токен, выпущенный
//     как access, криптографически не может пройти проверку как refresh
//     и наоборот. Дополнительно вид фиксируется claim'ом "kind" — защита
//     на случай, если оператор сконфигурирует одинаковые секреты;
//   - Пакет не обращается к хранилищу: проверка здесь чисто
//     криптографическая (подпись, срок, вид). Проверка отзыва —
//     отдельный шаг, принадлежащий пакету service;
//   - Секреты валидируются один раз в New, до каких-либо операций
//     подписи/проверки; слишком короткий секрет — ошибка конфигурации.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ryanpereira49/RyAuth/internal/config"
)

// Kind — вид токена; определяет секрет подписи и TTL.
type Kind string

const (
	// KindAccess — короткоживущий токен доступа (по умолчанию 15 минут).
	KindAccess Kind = "access"
	// KindRefresh — долгоживущий токен обновления (по умолчанию 7 дней).
	KindRefresh Kind = "refresh"
)

// MinSecretLen — минимальная длина каждого секрета подписи в байтах.
const MinSecretLen = 32

var (
	// ErrWeakSecret — секрет подписи отсутствует или короче MinSecretLen.
	// Ошибка конфигурации; поднимается из New до первой подписи/проверки.
	ErrWeakSecret = errors.New("signing secret is missing or shorter than 32 bytes")

	// ErrInvalidToken — подпись не сходится, токен малформирован или
	// подписан секретом другого вида.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
)

// Claims — полезная нагрузка токена.
// UserID и Role дублируют идентичность пользователя, jti (RegisteredClaims.ID)
// уникален для каждого выпуска, TokenKind привязывает токен к виду.
type Claims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	TokenKind string `json:"kind"`
	jwt.RegisteredClaims
}

// Codec подписывает и проверяет токены. Экземпляр неизменяем после New
// и безопасен для конкурентного использования.
type Codec struct {
	cfg config.AuthConfig
}

// New создаёт Codec, предварительно проверяя оба секрета.
// Ошибка именует дефектный секрет, не раскрывая его значения.
func New(cfg config.AuthConfig) (*Codec, error) {
	const op = "token.New"

	if len(cfg.AccessSecret) < MinSecretLen {
		return nil, fmt.Errorf("%s: access: %w", op, ErrWeakSecret)
	}

	if len(cfg.RefreshSecret) < MinSecretLen {
		return nil, fmt.Errorf("%s: refresh: %w", op, ErrWeakSecret)
	}

	return &Codec{cfg: cfg}, nil
}

// SignAccess выпускает access-токен для пользователя.
// Возвращает подписанный токен и момент его истечения.
func (c *Codec) SignAccess(userID uuid.UUID, role string, now time.Time) (string, time.Time, error) {
	const op = "token.SignAccess"

	signed, exp, err := c.sign(KindAccess, userID, role, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// SignRefresh выпускает refresh-токен для пользователя.
func (c *Codec) SignRefresh(userID uuid.UUID, role string, now time.Time) (string, time.Time, error) {
	const op = "token.SignRefresh"

	signed, exp, err := c.sign(KindRefresh, userID, role, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

func (c *Codec) sign(kind Kind, userID uuid.UUID, role string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.ttl(kind))

	claims := Claims{
		UserID:    userID.String(),
		Role:      role,
		TokenKind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(c.cfg.Audience),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret(kind))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, exp, nil
}

// Verify проверяет токен как токен вида kind.
//
// Ошибки: ErrTokenExpired при истёкшем сроке, ErrInvalidToken во всех прочих
// случаях отказа — включая попытку предъявить access-токен там, где
// ожидается refresh (и наоборот). Хранилище не опрашивается.
func (c *Codec) Verify(tokenStr string, kind Kind) (*Claims, error) {
	const op = "token.Verify"

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return c.secret(kind), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	// Привязка к виду: даже при совпадающих секретах cross-kind
	// проверка обязана падать закрыто.
	if claims.TokenKind != string(kind) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

func (c *Codec) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return []byte(c.cfg.RefreshSecret)
	}

	return []byte(c.cfg.AccessSecret)
}

func (c *Codec) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.cfg.RefreshTokenTTL
	}

	return c.cfg.AccessTokenTTL
}
