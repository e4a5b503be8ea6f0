// Package biometric owns encrypted face enrollment and matching.
//
// Encodings are kept encrypted at rest and decrypted only in memory while a
// single matching call runs. A match is always resolved to a stable account
// identity inside the snapshot it was computed against, so a concurrent
// enrollment can never shift a result onto another account.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/facegate/internal/crypto"
	"github.com/iudanet/facegate/internal/models"
	"github.com/iudanet/facegate/internal/server/face"
	"github.com/iudanet/facegate/internal/server/storage"
)

var (
	// ErrDuplicateFace indicates that the face is already enrolled under some account
	ErrDuplicateFace = errors.New("face already registered")

	// ErrLivenessFailed indicates that the capture is not of a live person
	ErrLivenessFailed = errors.New("liveness check failed")

	// ErrFaceNotVerified indicates that no face was detected on the capture
	ErrFaceNotVerified = errors.New("face not verified")

	// ErrEncodingFailed indicates that the face service produced no encoding
	ErrEncodingFailed = errors.New("failed to extract face encoding")

	// ErrNoMatch indicates that the capture matches no enrolled face
	ErrNoMatch = errors.New("no matching face")
)

// FaceService is the external face-analysis backend
type FaceService interface {
	MatchFace(ctx context.Context, candidates []face.Candidate, image []byte) (face.MatchResult, error)
	CheckLiveness(ctx context.Context, image []byte) (bool, error)
	VerifyFace(ctx context.Context, image []byte) (bool, error)
	ExtractEncoding(ctx context.Context, image []byte) (face.Encoding, error)
}

// AccountStore is the subset of account storage used by the registry
type AccountStore interface {
	ListEnrolledFaces(ctx context.Context) ([]models.EnrolledFace, error)
	SetFace(ctx context.Context, email string, f models.EncryptedFace) error
	GetAccountByID(ctx context.Context, accountID string) (*models.Account, error)
}

// Recorder receives operation outcomes for metrics
type Recorder interface {
	FaceOperation(op, result string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) FaceOperation(string, string, time.Duration) {}

// Match identifies the enrolled account that matched a capture
type Match struct {
	AccountID string
	Email     string
	// Position is the index of the account within the enrolled snapshot
	Position int
}

// Registry coordinates face enrollment and matching
type Registry struct {
	accounts AccountStore
	faces    FaceService
	codec    *crypto.Codec
	logger   *slog.Logger
	recorder Recorder

	// enrollMu serializes the whole enroll sequence from duplicate check to write
	enrollMu sync.Mutex
}

// Option configures Registry
type Option func(*Registry)

// WithRecorder attaches a metrics recorder
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// NewRegistry creates a new face registry
func NewRegistry(accounts AccountStore, faces FaceService, codec *crypto.Codec, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		accounts: accounts,
		faces:    faces,
		codec:    codec,
		logger:   logger,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindMatch compares image against every enrolled face.
// Records that fail to decrypt are skipped with a warning
func (r *Registry) FindMatch(ctx context.Context, image []byte) (Match, bool, error) {
	start := time.Now()
	m, ok, err := r.findMatch(ctx, image)

	result := "no_match"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "match"
	}
	r.recorder.FaceOperation("match", result, time.Since(start))

	return m, ok, err
}

// FindMatchIndex returns the position of the matched account within the
// enrolled snapshot, or -1 when nothing matched
func (r *Registry) FindMatchIndex(ctx context.Context, image []byte) (int, error) {
	m, ok, err := r.FindMatch(ctx, image)
	if err != nil {
		return -1, err
	}
	if !ok {
		return -1, nil
	}
	return m.Position, nil
}

func (r *Registry) findMatch(ctx context.Context, image []byte) (Match, bool, error) {
	enrolled, err := r.accounts.ListEnrolledFaces(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to list enrolled faces: %w", err)
	}

	// snapshot[i] соответствует candidates[i]
	snapshot := make([]Match, 0, len(enrolled))
	candidates := make([]face.Candidate, 0, len(enrolled))
	for pos, rec := range enrolled {
		var enc face.Encoding
		if err := r.codec.DecryptJSON(rec.Face.Ciphertext, rec.Face.IV, &enc); err != nil {
			r.logger.WarnContext(ctx, "skipping undecryptable face record",
				slog.String("account_id", rec.AccountID),
				slog.Any("error", err),
			)
			continue
		}
		snapshot = append(snapshot, Match{AccountID: rec.AccountID, Email: rec.Email, Position: pos})
		candidates = append(candidates, face.Candidate{Key: rec.AccountID, Encoding: enc})
	}

	if len(candidates) == 0 {
		return Match{}, false, nil
	}

	res, err := r.faces.MatchFace(ctx, candidates, image)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to match face: %w", err)
	}

	// Ключ, если сервис его вернул, надежнее индекса
	if res.Key != "" {
		for _, m := range snapshot {
			if m.AccountID == res.Key {
				return m, true, nil
			}
		}
		return Match{}, false, fmt.Errorf("%w: unknown key %q", face.ErrBadResponse, res.Key)
	}

	if res.Index < 0 {
		return Match{}, false, nil
	}
	// Индекс вне снимка не указывает ни на один аккаунт
	if res.Index >= len(snapshot) {
		return Match{}, false, fmt.Errorf("%w: match index %d out of range", storage.ErrAccountNotFound, res.Index)
	}
	return snapshot[res.Index], true, nil
}

// Enroll attaches a face encoding extracted from image to the account with email.
// Steps run in order and stop at the first failure; nothing is written
// before the final conditional update
func (r *Registry) Enroll(ctx context.Context, email string, image []byte) error {
	start := time.Now()
	err := r.enroll(ctx, email, image)
	r.recorder.FaceOperation("enroll", enrollResult(err), time.Since(start))
	return err
}

func (r *Registry) enroll(ctx context.Context, email string, image []byte) error {
	r.enrollMu.Lock()
	defer r.enrollMu.Unlock()

	// 1. Лицо не должно быть зарегистрировано ни под одним аккаунтом
	if _, found, err := r.findMatch(ctx, image); err != nil {
		return err
	} else if found {
		return ErrDuplicateFace
	}

	// 2. Проверка живости
	live, err := r.faces.CheckLiveness(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to check liveness: %w", err)
	}
	if !live {
		return ErrLivenessFailed
	}

	// 3. Детекция лица
	verified, err := r.faces.VerifyFace(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to verify face: %w", err)
	}
	if !verified {
		return ErrFaceNotVerified
	}

	// 4. Извлечение encoding
	enc, err := r.faces.ExtractEncoding(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to extract encoding: %w", err)
	}
	if len(enc) == 0 {
		return ErrEncodingFailed
	}

	// 5. Шифрование и запись
	ciphertext, iv, err := r.codec.EncryptJSON(enc)
	if err != nil {
		return fmt.Errorf("failed to encrypt encoding: %w", err)
	}

	if err := r.accounts.SetFace(ctx, email, models.EncryptedFace{Ciphertext: ciphertext, IV: iv}); err != nil {
		return fmt.Errorf("failed to store face: %w", err)
	}

	r.logger.InfoContext(ctx, "face enrolled", slog.String("email", email))
	return nil
}

// LoginByFace returns the account whose enrolled face matches image
func (r *Registry) LoginByFace(ctx context.Context, image []byte) (*models.Account, error) {
	m, ok, err := r.FindMatch(ctx, image)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMatch
	}

	account, err := r.accounts.GetAccountByID(ctx, m.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matched account: %w", err)
	}
	return account, nil
}

func enrollResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrDuplicateFace):
		return "duplicate"
	case errors.Is(err, ErrLivenessFailed):
		return "not_live"
	case errors.Is(err, ErrFaceNotVerified):
		return "not_verified"
	case errors.Is(err, ErrEncodingFailed):
		return "no_encoding"
	default:
		return "error"
	}
}
