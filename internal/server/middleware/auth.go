package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/facegate/internal/server/session"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionVerifier validates session tokens
type SessionVerifier interface {
	Verify(token string) (session.Identity, error)
}

// IdentityFromContext возвращает identity, добавленную AuthMiddleware
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey).(session.Identity)
	return id, ok
}

// WithIdentity кладет identity в контекст (используется и в тестах)
func WithIdentity(ctx context.Context, id session.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// AuthMiddleware создает middleware для проверки токена сессии
func AuthMiddleware(logger *slog.Logger, verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(ctx, "missing Authorization header")
				writeError(w, "missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.WarnContext(ctx, "invalid Authorization header format")
				writeError(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			// Валидируем токен
			id, err := verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.WarnContext(ctx, "invalid session token", slog.Any("error", err))
				writeError(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}

			logger.DebugContext(ctx, "session authenticated", slog.String("account_id", id.AccountID))

			// Передаем запрос дальше с обновленным контекстом
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}
