package gateway

import "errors"

// Gateway errors. Handlers map them to HTTP statuses with errors.Is
var (
	// ErrValidation indicates malformed input
	ErrValidation = errors.New("validation failed")

	// ErrPasswordMismatch indicates that password and confirmation differ
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrAccountExists indicates that email is already registered
	ErrAccountExists = errors.New("user already exists")

	// ErrAccountNotFound indicates that no account has this email
	ErrAccountNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOTP indicates an absent, expired or wrong one-time code
	ErrInvalidOTP = errors.New("invalid otp")

	// ErrInvalidToken indicates an absent or expired reset token
	ErrInvalidToken = errors.New("invalid token")

	// ErrUpstream indicates a failure of the face service or the dispatcher
	ErrUpstream = errors.New("upstream failure")

	// ErrUpstreamTimeout indicates that the face service didn't answer in time.
	// The client may retry
	ErrUpstreamTimeout = errors.New("upstream timeout")
)
