// Package api holds request and response bodies shared by server and client.
package api

import "time"

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Email           string `json:"email"`           // email пользователя (регистр сохраняется)
	Password        string `json:"password"`        // пароль в открытом виде, только по TLS
	ConfirmPassword string `json:"confirmPassword"` // подтверждение пароля
}

// LoginRequest представляет запрос на вход по паролю
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse представляет ответ с токеном сессии
type TokenResponse struct {
	ExpiresAt time.Time `json:"expiresAt"` // момент истечения токена
	Token     string    `json:"token"`     // подписанный JWT
}

// FaceMatchResponse представляет ответ на вход по лицу
type FaceMatchResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"` // email найденного аккаунта
	Token     string    `json:"token"`
}

// OTPSendRequest представляет запрос на отправку одноразового кода
type OTPSendRequest struct {
	Email string `json:"email"`
}

// OTPVerifyRequest представляет запрос на проверку одноразового кода
type OTPVerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"` // 6 цифр
}

// OTPVerifyResponse представляет ответ на успешную проверку кода
type OTPVerifyResponse struct {
	Verified bool `json:"verified"`
}

// PasswordResetRequest представляет запрос ссылки сброса пароля
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirm представляет запрос установки нового пароля
type PasswordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// MeResponse описывает владельца текущей сессии
type MeResponse struct {
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
}

// MessageResponse представляет ответ с текстовым сообщением
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
