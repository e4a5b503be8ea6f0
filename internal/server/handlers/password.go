package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/facegate/internal/server/gateway"
	"github.com/iudanet/facegate/pkg/api"
)

// PasswordService описывает операции сброса пароля
type PasswordService interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// PasswordHandler обрабатывает запросы сброса пароля
type PasswordHandler struct {
	responder
	svc PasswordService
}

// NewPasswordHandler создает новый handler для /api/password
func NewPasswordHandler(logger *slog.Logger, svc PasswordService) *PasswordHandler {
	return &PasswordHandler{responder: responder{logger: logger}, svc: svc}
}

// Request обрабатывает POST /api/password/request
func (h *PasswordHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req api.PasswordResetRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		// Неизвестный email здесь 400, а не 404
		if errors.Is(err, gateway.ErrAccountNotFound) {
			h.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "Password reset link sent"}, http.StatusOK)
}

// Reset обрабатывает POST /api/password/reset
func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req api.PasswordResetConfirm
	if !h.decode(w, r, &req) {
		return
	}

	if req.Token == "" {
		h.sendError(w, gateway.ErrInvalidToken.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "Password reset successful"}, http.StatusOK)
}
