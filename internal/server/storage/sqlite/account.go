package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/facegate/internal/models"
	"github.com/iudanet/facegate/internal/server/storage"
)

const accountColumns = `id, email, password_hash, face_ciphertext, face_iv, created_at, updated_at, last_login`

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateAccount creates a new account in the storage
func (s *Storage) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, face_ciphertext, face_iv, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var faceCiphertext, faceIV sql.NullString
	if account.Face != nil {
		faceCiphertext = sql.NullString{String: account.Face.Ciphertext, Valid: true}
		faceIV = sql.NullString{String: account.Face.IV, Valid: true}
	}

	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = account.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		faceCiphertext,
		faceIV,
		account.CreatedAt,
		updatedAt,
		account.LastLogin,
	)

	if err != nil {
		// Проверяем на duplicate email
		if isUniqueViolation(err) {
			return storage.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// GetAccountByEmail retrieves account by email
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountByID retrieves account by ID
func (s *Storage) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// UpdatePassword replaces password hash of the account
func (s *Storage) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE email = ?`

	result, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), email)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

// SetFace stores encrypted face for the account unless one is already present
func (s *Storage) SetFace(ctx context.Context, email string, face models.EncryptedFace) error {
	query := `
		UPDATE accounts
		SET face_ciphertext = ?, face_iv = ?, updated_at = ?
		WHERE email = ? AND face_ciphertext IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, face.Ciphertext, face.IV, time.Now().UTC(), email)
	if err != nil {
		return fmt.Errorf("failed to set face: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		return nil
	}

	// Ни одна строка не обновлена: аккаунта нет или лицо уже сохранено
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrAccountNotFound
		}
		return fmt.Errorf("failed to check account: %w", err)
	}

	return storage.ErrFaceAlreadyEnrolled
}

// ListEnrolledFaces returns every account with a stored face ordered by creation
func (s *Storage) ListEnrolledFaces(ctx context.Context) ([]models.EnrolledFace, error) {
	query := `
		SELECT id, email, face_ciphertext, face_iv
		FROM accounts
		WHERE face_ciphertext IS NOT NULL
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrolled faces: %w", err)
	}
	defer rows.Close()

	var faces []models.EnrolledFace
	for rows.Next() {
		var f models.EnrolledFace
		var iv sql.NullString
		if err := rows.Scan(&f.AccountID, &f.Email, &f.Face.Ciphertext, &iv); err != nil {
			return nil, fmt.Errorf("failed to scan enrolled face: %w", err)
		}
		f.Face.IV = iv.String
		faces = append(faces, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrolled faces: %w", err)
	}

	return faces, nil
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, accountID string, lastLogin time.Time) error {
	query := `UPDATE accounts SET last_login = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, lastLogin, accountID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	var faceCiphertext, faceIV sql.NullString
	var lastLogin sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&faceCiphertext,
		&faceIV,
		&account.CreatedAt,
		&account.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}

	if faceCiphertext.Valid {
		account.Face = &models.EncryptedFace{
			Ciphertext: faceCiphertext.String,
			IV:         faceIV.String,
		}
	}

	if lastLogin.Valid {
		account.LastLogin = &lastLogin.Time
	}

	return account, nil
}

// modernc формирует текст вида "constraint failed: UNIQUE constraint failed: accounts.email (2067)"
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
