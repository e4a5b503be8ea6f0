package storage

import (
	"context"
	"time"
)

// SessionStorage keeps the session token obtained by the last login.
type SessionStorage interface {
	// SaveSession replaces the stored session
	SaveSession(ctx context.Context, s *Session) error

	// GetSession returns the stored session or ErrSessionNotFound
	GetSession(ctx context.Context) (*Session, error)

	// DeleteSession removes the stored session (logout)
	DeleteSession(ctx context.Context) error

	// HasValidSession reports whether a non-expired session is stored
	HasValidSession(ctx context.Context) (bool, error)
}

// Session is a bearer token issued by the gateway together with the
// method that produced it.
type Session struct {
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	Method    string    `json:"method"`
	ServerURL string    `json:"server_url"`
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
