package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iudanet/facegate/internal/server/gateway"
	"github.com/iudanet/facegate/internal/server/middleware"
	"github.com/iudanet/facegate/pkg/api"
)

// UserService описывает операции gateway для /api/users
type UserService interface {
	Register(ctx context.Context, email, password, confirm string) error
	LoginPassword(ctx context.Context, email, password string) (gateway.Session, error)
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
}

// UsersHandler обрабатывает регистрацию, вход по паролю и одноразовые коды
type UsersHandler struct {
	responder
	svc UserService
}

// NewUsersHandler создает новый handler для /api/users
func NewUsersHandler(logger *slog.Logger, svc UserService) *UsersHandler {
	return &UsersHandler{responder: responder{logger: logger}, svc: svc}
}

// Register обрабатывает POST /api/users/register
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.Register(r.Context(), req.Email, req.Password, req.ConfirmPassword); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "User registered successfully"}, http.StatusCreated)
}

// LoginPassword обрабатывает POST /api/users/login-password
func (h *UsersHandler) LoginPassword(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		h.sendError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	sess, err := h.svc.LoginPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.TokenResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt}, http.StatusOK)
}

// SendOTP обрабатывает POST /api/users/otp/send
func (h *UsersHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req api.OTPSendRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.SendOTP(r.Context(), req.Email); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "OTP sent"}, http.StatusOK)
}

// VerifyOTP обрабатывает POST /api/users/otp/verify
func (h *UsersHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req api.OTPVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.OTPVerifyResponse{Verified: true}, http.StatusOK)
}

// Me обрабатывает GET /api/users/me
// Требует AuthMiddleware
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	h.sendJSON(w, api.MeResponse{
		AccountID: id.AccountID,
		Email:     id.Email,
		ExpiresAt: id.ExpiresAt,
	}, http.StatusOK)
}
