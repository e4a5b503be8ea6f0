// Package session issues and verifies signed session tokens.
package session

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the lifetime of an issued token
	DefaultTTL = 5 * time.Minute

	// DefaultIssuer is written to the iss claim
	DefaultIssuer = "facegate"
)

var (
	// ErrInvalidOrExpiredSession is returned for any token that can't be trusted
	ErrInvalidOrExpiredSession = errors.New("invalid or expired session")

	// ErrEmptySecret is returned when the signing secret is not configured
	ErrEmptySecret = errors.New("session secret cannot be empty")
)

// Identity is the account bound to a session.
// ExpiresAt is filled by Verify and ignored by Issue
type Identity struct {
	ExpiresAt time.Time
	AccountID string
	Email     string
}

// Claims представляет JWT claims сессии
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	gojwt.RegisteredClaims
}

// Service provides session token generation and validation
type Service struct {
	now    func() time.Time
	issuer string
	secret []byte
	ttl    time.Duration
}

// Option configures Service
type Option func(*Service)

// WithTTL overrides token lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time source (useful for tests)
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIssuer overrides the iss claim
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// NewService creates a new session service.
// secret should be a cryptographically secure random string
func NewService(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	s := &Service{
		secret: secret,
		ttl:    DefaultTTL,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns configured token lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue создает подписанный токен для identity и возвращает момент его истечения
func (s *Service) Issue(id Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		AccountID: id.AccountID,
		Email:     id.Email,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.AccountID,
			ExpiresAt: gojwt.NewNumericDate(expiresAt),
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	// Возвращаем время с точностью claims, чтобы клиент видел то же, что в токене
	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify валидирует токен и возвращает identity.
// Любая ошибка разбора, подписи или срока сводится к ErrInvalidOrExpiredSession
func (s *Service) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrInvalidOrExpiredSession
	}

	token, err := gojwt.ParseWithClaims(tokenString, &Claims{}, func(token *gojwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(s.issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidOrExpiredSession, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return Identity{}, ErrInvalidOrExpiredSession
	}

	id := Identity{AccountID: claims.AccountID, Email: claims.Email}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
