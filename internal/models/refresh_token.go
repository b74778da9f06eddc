package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — запись о выданном refresh-токене.
//
// TokenHash — ключ поиска: sha256 от plaintext-токена в base64url; сам токен
// в хранилище не попадает. Запись считается «живой», если Revoked == false
// и ExpiresAt в будущем. Повторное сохранение записи с тем же TokenHash
// сбрасывает Revoked — осознанная политика переиздания слота
// (см. комментарий к SaveRefreshToken в пакете storage).
type RefreshToken struct {
	TokenHash string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Live сообщает, пригодна ли запись для ротации в момент now.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
