package validation

import (
	"fmt"
	"regexp"
)

// EmailPattern определяет допустимый формат email
// local-part@domain.tld без пробелов и повторных @
var EmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	// MaxEmailLen максимальная длина email (RFC 5321)
	MaxEmailLen = 254
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxPasswordLen максимальная длина пароля (ограничение bcrypt - 72 байта)
	MaxPasswordLen = 72
	// OTPLen длина одноразового кода
	OTPLen = 6
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidateEmail проверяет, что email соответствует требованиям
// Email хранится как есть, регистр не нормализуется
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	if !EmailPattern.MatchString(email) {
		return fmt.Errorf("email has invalid format")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
// Длина: 8-72 байта
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	}

	return nil
}

// ValidateOTP проверяет формат одноразового кода (6 цифр)
func ValidateOTP(code string) error {
	if !otpPattern.MatchString(code) {
		return fmt.Errorf("otp must be %d digits", OTPLen)
	}
	return nil
}
