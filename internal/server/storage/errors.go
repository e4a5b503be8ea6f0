package storage

import "errors"

// Common storage errors
var (
	// ErrAccountNotFound indicates that account was not found in storage
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists indicates that account with this email already exists
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrFaceAlreadyEnrolled indicates that account already has a stored face encoding
	ErrFaceAlreadyEnrolled = errors.New("face already enrolled for account")

	// ErrSecretNotFound indicates that ephemeral secret is absent or expired
	ErrSecretNotFound = errors.New("secret not found")
)
