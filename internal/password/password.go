// password реализует одностороннее хэширование паролей на argon2id
// и их проверку, устойчивую к атакам по времени.
//
// Основные аспекты:
//   - Выход Hash — самоописывающая PHC-строка
//     ($argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>), поэтому для проверки
//     не нужно внешнее состояние: параметры и соль читаются из самого блоба;
//   - Verify сравнивает хэши через crypto/subtle и не завершается раньше
//     при частичном совпадении; нераспарсившийся блоб «сжигает» эквивалентное
//     argon2-вычисление, чтобы не давать оракул по времени декодирования;
//   - Тяжёлые вычисления ограничены взвешенным семафором: всплеск хэширования
//     не блокирует конкурентные проверки токенов и чтения из хранилища.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const algorithmID = "argon2id"

var (
	// ErrInvalidParams — параметры argon2id вне допустимых границ.
	ErrInvalidParams = errors.New("invalid argon2 params")
	// ErrEmptyPassword — пустой пароль хэшировать нельзя.
	ErrEmptyPassword = errors.New("password is empty")
)

// Params — стоимостные параметры argon2id.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams возвращает параметры по умолчанию (64 MiB, t=1, p=4).
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher хэширует и проверяет пароли. Экземпляр безопасен для
// конкурентного использования.
type Hasher struct {
	params Params
	sem    *semaphore.Weighted
	decoy  string
}

// New создаёт Hasher и заранее вычисляет decoy-хэш от случайного пароля.
// Decoy используется вызывающим кодом для выравнивания времени ответа,
// когда пользователь не найден (см. service.LoginUser).
func New(params Params) (*Hasher, error) {
	const op = "password.New"

	if err := validateParams(params); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	h := &Hasher{
		params: params,
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}

	decoySecret := make([]byte, 32)
	if _, err := rand.Read(decoySecret); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	decoy, err := h.Hash(context.Background(), base64.RawURLEncoding.EncodeToString(decoySecret))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	h.decoy = decoy

	return h, nil
}

// MustNew — обёртка над New с panic при ошибке (для main/тестов).
func MustNew(params Params) *Hasher {
	h, err := New(params)
	if err != nil {
		panic(err)
	}

	return h
}

// Decoy возвращает заранее вычисленный хэш случайного пароля.
// Проверка любого пароля против него всегда даёт false и занимает
// столько же времени, сколько проверка против настоящего хэша.
func (h *Hasher) Decoy() string {
	return h.decoy
}

// Hash хэширует пароль со свежей случайной солью.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	const op = "password.Hash"

	if password == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer h.sem.Release(1)

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify сравнивает пароль с PHC-блобом.
//
// Никогда не возвращает ошибку: несовпадение, как и недекодируемый блоб, —
// это false. Время работы не зависит ни от места несовпадения, ни от того,
// распарсился ли блоб: в ветке ошибки парсинга выполняется argon2-вычисление
// той же стоимости.
func (h *Hasher) Verify(ctx context.Context, encoded, password string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	parsed, err := parsePHC(encoded)
	if err != nil {
		h.burn(password)
		return false
	}

	computed := argon2.IDKey([]byte(password), parsed.salt,
		parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1
}

// burn выполняет argon2-вычисление стандартной стоимости и отбрасывает
// результат. Вызывается, когда блоб не распарсился.
func (h *Hasher) burn(password string) {
	salt := make([]byte, h.params.SaltLength)
	key := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	subtle.ConstantTimeCompare(key, key)
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// parsePHC разбирает строку вида $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("malformed phc string")
	}

	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var p parsedPHC
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("malformed params")
		}

		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, errors.New("malformed params")
		}

		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, errors.New("malformed params")
			}
			p.parallelism = uint8(n)
		default:
			return nil, errors.New("malformed params")
		}
	}

	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing params")
	}

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) == 0 {
		return nil, errors.New("malformed salt")
	}

	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, errors.New("malformed hash")
	}

	return &p, nil
}

func validateParams(p Params) error {
	if p.Memory < 8*1024 || p.Time < 1 || p.Parallelism < 1 ||
		p.SaltLength < 16 || p.KeyLength < 16 {
		return ErrInvalidParams
	}

	return nil
}
