// Package gateway sequences the authentication flows: registration,
// password login, one-time codes, password reset and face login.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/iudanet/facegate/internal/crypto"
	"github.com/iudanet/facegate/internal/models"
	"github.com/iudanet/facegate/internal/server/biometric"
	"github.com/iudanet/facegate/internal/server/face"
	"github.com/iudanet/facegate/internal/server/notify"
	"github.com/iudanet/facegate/internal/server/session"
	"github.com/iudanet/facegate/internal/server/storage"
	"github.com/iudanet/facegate/internal/validation"
)

// otpSecretSize is the size of the random TOTP seed used per code
const otpSecretSize = 20

// AccountStore is the subset of account storage used by the gateway
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	UpdateLastLogin(ctx context.Context, accountID string, lastLogin time.Time) error
}

// SessionIssuer mints session tokens
type SessionIssuer interface {
	Issue(id session.Identity) (string, time.Time, error)
}

// FaceRegistry enrolls and matches faces
type FaceRegistry interface {
	Enroll(ctx context.Context, email string, image []byte) error
	LoginByFace(ctx context.Context, image []byte) (*models.Account, error)
}

// Recorder receives authentication outcomes for metrics
type Recorder interface {
	AuthAttempt(method, result string)
}

type noopRecorder struct{}

func (noopRecorder) AuthAttempt(string, string) {}

// Deps groups collaborators of the Service
type Deps struct {
	Accounts    AccountStore
	OTPs        storage.SecretStorage
	ResetTokens storage.SecretStorage
	Sessions    SessionIssuer
	Faces       FaceRegistry
	Dispatcher  notify.Dispatcher
	Logger      *slog.Logger
	Recorder    Recorder
}

// Config holds gateway behavior settings
type Config struct {
	// Now overrides time source (useful for tests)
	Now func() time.Time

	// ResetURL is the base of links sent for password reset
	ResetURL string

	// ConcealAccounts makes login and reset requests indistinguishable
	// for unknown emails
	ConcealAccounts bool
}

// Session is an issued session token
type Session struct {
	ExpiresAt time.Time
	Token     string
}

// FaceLogin is the result of a successful face login
type FaceLogin struct {
	Session   Session
	AccountID string
	Email     string
}

// Service implements authentication flows
type Service struct {
	deps Deps
	cfg  Config
}

// New creates a new gateway service
func New(deps Deps, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	return &Service{deps: deps, cfg: cfg}
}

// Register creates an account with a bcrypt-hashed password
func (s *Service) Register(ctx context.Context, email, password, confirm string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if err := validation.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Проверяем существование до дорогого хеширования
	if _, err := s.deps.Accounts.GetAccountByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, storage.ErrAccountNotFound) {
		return fmt.Errorf("failed to check account: %w", err)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.cfg.Now().UTC()
	account := &models.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.deps.Accounts.CreateAccount(ctx, account); err != nil {
		// Параллельная регистрация с тем же email
		if errors.Is(err, storage.ErrAccountAlreadyExists) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.deps.Logger.InfoContext(ctx, "account registered", slog.String("account_id", account.ID))
	return nil
}

// LoginPassword verifies credentials and issues a session
func (s *Service) LoginPassword(ctx context.Context, email, password string) (Session, error) {
	account, err := s.deps.Accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			s.deps.Recorder.AuthAttempt("password", "unknown_account")
			if s.cfg.ConcealAccounts {
				return Session{}, ErrInvalidCredentials
			}
			return Session{}, ErrAccountNotFound
		}
		return Session{}, fmt.Errorf("failed to get account: %w", err)
	}

	if err := crypto.VerifyPassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			s.deps.Recorder.AuthAttempt("password", "failure")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("failed to verify password: %w", err)
	}

	sess, err := s.issue(ctx, account)
	if err != nil {
		return Session{}, err
	}

	s.deps.Recorder.AuthAttempt("password", "success")
	return sess, nil
}

// SendOTP generates a 6-digit code, stores it under email and dispatches it
func (s *Service) SendOTP(ctx context.Context, email string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	code, err := s.generateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}

	if err := s.deps.OTPs.Put(ctx, email, code); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	if err := s.deps.Dispatcher.Send(ctx, notify.OTPMessage(email, code)); err != nil {
		return fmt.Errorf("%w: failed to dispatch otp: %w", ErrUpstream, err)
	}

	return nil
}

// VerifyOTP consumes the stored code for email. Any attempt burns the code
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	stored, err := s.deps.OTPs.Consume(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrSecretNotFound) {
			s.deps.Recorder.AuthAttempt("otp", "failure")
			return ErrInvalidOTP
		}
		return fmt.Errorf("failed to consume otp: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.deps.Recorder.AuthAttempt("otp", "failure")
		return ErrInvalidOTP
	}

	s.deps.Recorder.AuthAttempt("otp", "success")
	return nil
}

// RequestPasswordReset stores a random token for email and dispatches a reset link
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if _, err := s.deps.Accounts.GetAccountByEmail(ctx, email); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			if s.cfg.ConcealAccounts {
				s.deps.Logger.DebugContext(ctx, "reset requested for unknown account")
				return nil
			}
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to get account: %w", err)
	}

	token, err := crypto.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	if err := s.deps.ResetTokens.Put(ctx, token, email); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link, err := s.resetLink(token)
	if err != nil {
		return err
	}

	if err := s.deps.Dispatcher.Send(ctx, notify.ResetMessage(email, link)); err != nil {
		return fmt.Errorf("%w: failed to dispatch reset link: %w", ErrUpstream, err)
	}

	return nil
}

// ResetPassword consumes token and replaces the password of its account
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	// Пароль проверяется до расходования токена, ссылка остается рабочей
	if err := validation.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	email, err := s.deps.ResetTokens.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrSecretNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.deps.Accounts.UpdatePassword(ctx, email, hash); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.deps.Logger.InfoContext(ctx, "password reset", slog.String("email", email))
	return nil
}

// EnrollFace attaches a face extracted from image to the account with email
func (s *Service) EnrollFace(ctx context.Context, email string, image []byte) error {
	if email == "" {
		return fmt.Errorf("%w: email cannot be empty", ErrValidation)
	}
	if len(image) == 0 {
		return fmt.Errorf("%w: image cannot be empty", ErrValidation)
	}

	if err := s.deps.Faces.Enroll(ctx, email, image); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return classifyUpstream(err)
	}
	return nil
}

// LoginByFace matches image against enrolled faces and issues a session
func (s *Service) LoginByFace(ctx context.Context, image []byte) (FaceLogin, error) {
	if len(image) == 0 {
		return FaceLogin{}, fmt.Errorf("%w: image cannot be empty", ErrValidation)
	}

	account, err := s.deps.Faces.LoginByFace(ctx, image)
	if err != nil {
		switch {
		case errors.Is(err, biometric.ErrNoMatch):
			s.deps.Recorder.AuthAttempt("face", "failure")
			return FaceLogin{}, err
		case errors.Is(err, storage.ErrAccountNotFound):
			s.deps.Recorder.AuthAttempt("face", "failure")
			return FaceLogin{}, ErrAccountNotFound
		}
		return FaceLogin{}, classifyUpstream(err)
	}

	sess, err := s.issue(ctx, account)
	if err != nil {
		return FaceLogin{}, err
	}

	s.deps.Recorder.AuthAttempt("face", "success")
	return FaceLogin{AccountID: account.ID, Email: account.Email, Session: sess}, nil
}

// issue выдает сессию и обновляет время последнего входа
func (s *Service) issue(ctx context.Context, account *models.Account) (Session, error) {
	token, expiresAt, err := s.deps.Sessions.Issue(session.Identity{
		AccountID: account.ID,
		Email:     account.Email,
	})
	if err != nil {
		return Session{}, fmt.Errorf("failed to issue session: %w", err)
	}

	// Ошибка обновления last_login не должна ломать вход
	if err := s.deps.Accounts.UpdateLastLogin(ctx, account.ID, s.cfg.Now().UTC()); err != nil {
		s.deps.Logger.WarnContext(ctx, "failed to update last login",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}

	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// generateOTP считает 6-значный TOTP по свежему случайному секрету
func (s *Service) generateOTP() (string, error) {
	seed, err := crypto.RandomBytes(otpSecretSize)
	if err != nil {
		return "", err
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(seed)

	return totp.GenerateCodeCustom(secret, s.cfg.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func (s *Service) resetLink(token string) (string, error) {
	u, err := url.Parse(s.cfg.ResetURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classifyUpstream оборачивает ошибки face-сервиса в ошибки gateway.
// Доменные ошибки реестра возвращаются как есть
func classifyUpstream(err error) error {
	switch {
	case errors.Is(err, face.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	case errors.Is(err, face.ErrUnavailable), errors.Is(err, face.ErrBadResponse):
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return err
}
