package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// KeySize - длина ключа шифрования в байтах (AES-256)
	KeySize = 32
	// TokenSize - длина случайного токена сброса пароля в байтах
	TokenSize = 32
)

// DeriveKey получает ключ фиксированной длины из общего секрета
// через одностороннюю хеш-функцию SHA-256
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// RandomBytes генерирует n криптографически случайных байт
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return buf, nil
}

// GenerateToken генерирует непрозрачный токен высокой энтропии (hex, 64 символа)
func GenerateToken() (string, error) {
	buf, err := RandomBytes(TokenSize)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
