package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/facegate/internal/server/biometric"
	"github.com/iudanet/facegate/internal/server/gateway"
	"github.com/iudanet/facegate/internal/server/storage"
	"github.com/iudanet/facegate/pkg/api"
)

// retryAfterSeconds подсказывает клиенту, когда повторить запрос после таймаута face-сервиса
const retryAfterSeconds = "1"

// responder содержит общие методы отправки ответов
type responder struct {
	logger *slog.Logger
}

// sendJSON отправляет JSON ответ
func (h responder) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h responder) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}

// decode разбирает JSON тело запроса. При ошибке ответ уже отправлен
func (h responder) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.sendError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		h.logger.WarnContext(r.Context(), "failed to decode request body", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// serviceError отображает ошибку gateway в HTTP статус.
// Ошибки, статус которых зависит от endpoint, обрабатываются до вызова
func (h responder) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		h.sendError(w, "request body too large", http.StatusRequestEntityTooLarge)

	case errors.Is(err, gateway.ErrValidation),
		errors.Is(err, gateway.ErrPasswordMismatch),
		errors.Is(err, gateway.ErrAccountExists),
		errors.Is(err, gateway.ErrInvalidOTP),
		errors.Is(err, gateway.ErrInvalidToken),
		errors.Is(err, biometric.ErrDuplicateFace),
		errors.Is(err, biometric.ErrLivenessFailed),
		errors.Is(err, biometric.ErrFaceNotVerified):
		h.logger.WarnContext(ctx, "request rejected", slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, gateway.ErrInvalidCredentials):
		h.logger.WarnContext(ctx, "invalid credentials")
		h.sendError(w, err.Error(), http.StatusUnauthorized)

	case errors.Is(err, gateway.ErrAccountNotFound), errors.Is(err, biometric.ErrNoMatch):
		h.logger.WarnContext(ctx, "not found", slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, storage.ErrFaceAlreadyEnrolled):
		h.logger.WarnContext(ctx, "face already enrolled")
		h.sendError(w, err.Error(), http.StatusConflict)

	case errors.Is(err, biometric.ErrEncodingFailed):
		h.logger.ErrorContext(ctx, "face encoding failed", slog.Any("error", err))
		h.sendError(w, biometric.ErrEncodingFailed.Error(), http.StatusInternalServerError)

	case errors.Is(err, gateway.ErrUpstreamTimeout):
		h.logger.ErrorContext(ctx, "upstream timeout", slog.Any("error", err))
		w.Header().Set("Retry-After", retryAfterSeconds)
		h.sendError(w, "upstream timeout, please retry", http.StatusServiceUnavailable)

	default:
		h.logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}
