package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRole — роль, присваиваемая пользователю при регистрации,
// если явно не указана другая.
const DefaultRole = "user"

// User — модель пользователя в системе.
//
// Email — уникальный ключ, хранится ровно в том виде, в каком был передан
// при регистрации (регистрозависимое сравнение). PasswordHash — непрозрачный
// argon2id-блоб в PHC-формате; никогда не логируется и не отдаётся наружу.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
