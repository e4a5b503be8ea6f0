package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// NonceSize - размер nonce (IV) для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
)

var (
	// ErrEmptySecret возвращается, если общий секрет для ключа шифрования не задан
	ErrEmptySecret = errors.New("encryption secret is empty")

	// ErrDecryption возвращается при любой ошибке дешифрования:
	// неверный hex, усеченные данные, чужой ключ или подмена данных
	ErrDecryption = errors.New("decryption failed")
)

// Codec шифрует и дешифрует сериализованные данные (face encodings)
// ключом, производным от общего секрета процесса.
// Ключ вычисляется один раз при создании, Codec безопасен для конкурентного использования.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec создает Codec с ключом SHA-256(secret) (AES-256-GCM)
// Пустой секрет - ошибка конфигурации, сервер не должен стартовать
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := DeriveKey(secret)

	// Создаем AES cipher block
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// Создаем GCM mode
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: aesGCM}, nil
}

// Encrypt шифрует plaintext со свежим случайным IV
// Возвращает hex(ciphertext + auth_tag) и hex(IV), IV хранится рядом с шифротекстом
func (c *Codec) Encrypt(plaintext []byte) (string, string, error) {
	// Генерируем случайный nonce на каждый вызов
	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("failed to generate iv: %w", err)
	}

	// GCM автоматически добавляет authentication tag в конец
	ciphertext := c.aead.Seal(nil, iv, plaintext, nil)

	return hex.EncodeToString(ciphertext), hex.EncodeToString(iv), nil
}

// Decrypt дешифрует данные, зашифрованные с помощью Encrypt
// Любая проблема с входными данными возвращает ErrDecryption
func (c *Codec) Decrypt(ciphertextHex, ivHex string) ([]byte, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iv encoding", ErrDecryption)
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, NonceSize, len(iv))
	}

	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryption)
	}
	if len(ciphertext) < c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	// Дешифруем и проверяем authentication tag
	plaintext, err := c.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed or corrupted data", ErrDecryption)
	}

	return plaintext, nil
}

// EncryptJSON сериализует v в JSON и шифрует результат
func (c *Codec) EncryptJSON(v any) (string, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Encrypt(data)
}

// DecryptJSON дешифрует данные и десериализует JSON в v
func (c *Codec) DecryptJSON(ciphertextHex, ivHex string, v any) error {
	data, err := c.Decrypt(ciphertextHex, ivHex)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %w", ErrDecryption, err)
	}
	return nil
}
