package models

import "time"

// Account представляет учетную запись пользователя в системе
type Account struct {
	CreatedAt    time.Time      `json:"created_at"`           // время создания
	UpdatedAt    time.Time      `json:"updated_at"`           // время последнего обновления
	LastLogin    *time.Time     `json:"last_login,omitempty"` // время последнего входа
	Face         *EncryptedFace `json:"-"`                    // зашифрованный face encoding (nil - не зарегистрирован)
	ID           string         `json:"id"`                   // UUID учетной записи
	Email        string         `json:"email"`                // уникальный email (регистр сохраняется)
	PasswordHash string         `json:"-"`                    // bcrypt хеш пароля
}

// HasFace сообщает, зарегистрирован ли для учетной записи face encoding
func (a *Account) HasFace() bool {
	return a.Face != nil
}

// EncryptedFace - зашифрованное представление face encoding
// В открытом виде encoding существует только в памяти во время сравнения
type EncryptedFace struct {
	Ciphertext string `json:"ciphertext"` // hex(AES-GCM ciphertext + tag)
	IV         string `json:"iv"`         // hex(nonce), уникален для каждой записи
}

// EnrolledFace - элемент снимка зарегистрированных лиц для сравнения
type EnrolledFace struct {
	Face      EncryptedFace
	AccountID string
	Email     string
}
