package storage

import (
	"context"
	"time"

	"github.com/iudanet/facegate/internal/models"
)

// AccountStorage defines interface for account persistence
type AccountStorage interface {
	// CreateAccount creates a new account in the storage
	// Returns ErrAccountAlreadyExists if email is already registered
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccountByEmail retrieves account by exact (case-sensitive) email
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)

	// GetAccountByID retrieves account by ID
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByID(ctx context.Context, accountID string) (*models.Account, error)

	// UpdatePassword replaces the password hash of the account with given email
	// Returns ErrAccountNotFound if account doesn't exist
	UpdatePassword(ctx context.Context, email, passwordHash string) error

	// SetFace attaches an encrypted face encoding to the account with given email.
	// The face is written at most once: returns ErrFaceAlreadyEnrolled if the
	// account already has one and ErrAccountNotFound if the account doesn't exist
	SetFace(ctx context.Context, email string, face models.EncryptedFace) error

	// ListEnrolledFaces returns a snapshot of every account with a stored face,
	// ordered by creation time and ID. The order is stable between calls
	// unless accounts are enrolled or removed in between
	ListEnrolledFaces(ctx context.Context) ([]models.EnrolledFace, error)

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, accountID string, lastLogin time.Time) error

	// Ping checks that the storage is reachable
	Ping(ctx context.Context) error
}
