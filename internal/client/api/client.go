package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/facegate/pkg/api"
)

// Error описывает ответ сервера с не-2xx статусом
type Error struct {
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode возвращает HTTP статус ошибки сервера или 0
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/users/register", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// LoginPassword выполняет вход по паролю
func (c *Client) LoginPassword(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/users/login-password", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// SendOTP запрашивает одноразовый код на email
func (c *Client) SendOTP(ctx context.Context, email string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/users/otp/send", api.OTPSendRequest{Email: email}, nil); err != nil {
		return fmt.Errorf("otp send request failed: %w", err)
	}
	return nil
}

// VerifyOTP проверяет одноразовый код
func (c *Client) VerifyOTP(ctx context.Context, req api.OTPVerifyRequest) (*api.OTPVerifyResponse, error) {
	var resp api.OTPVerifyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/users/otp/verify", req, &resp); err != nil {
		return nil, fmt.Errorf("otp verify request failed: %w", err)
	}
	return &resp, nil
}

// RequestPasswordReset запрашивает ссылку сброса пароля
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/password/request", api.PasswordResetRequest{Email: email}, nil); err != nil {
		return fmt.Errorf("password reset request failed: %w", err)
	}
	return nil
}

// ResetPassword устанавливает новый пароль по токену из ссылки
func (c *Client) ResetPassword(ctx context.Context, req api.PasswordResetConfirm) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/password/reset", req, nil); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	return nil
}

// StoreFace регистрирует лицо для аккаунта email
func (c *Client) StoreFace(ctx context.Context, email string, image []byte, contentType string) (*api.MessageResponse, error) {
	path := "/api/face/store?" + url.Values{"email": {email}}.Encode()

	var resp api.MessageResponse
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(image), imageContentType(contentType), "", &resp); err != nil {
		return nil, fmt.Errorf("face store request failed: %w", err)
	}
	return &resp, nil
}

// MatchFace выполняет вход по изображению лица
func (c *Client) MatchFace(ctx context.Context, image []byte, contentType string) (*api.FaceMatchResponse, error) {
	var resp api.FaceMatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/face/match", bytes.NewReader(image), imageContentType(contentType), "", &resp); err != nil {
		return nil, fmt.Errorf("face match request failed: %w", err)
	}
	return &resp, nil
}

// Me возвращает владельца сессии token
func (c *Client) Me(ctx context.Context, token string) (*api.MeResponse, error) {
	var resp api.MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, "", token, &resp); err != nil {
		return nil, fmt.Errorf("me request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, "", "", &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

func imageContentType(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

// doJSON выполняет запрос с JSON телом
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, bodyReader, contentType, "", result)
}

// do выполняет HTTP запрос
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType, token string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
