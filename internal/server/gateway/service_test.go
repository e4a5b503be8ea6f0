package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/facegate/internal/models"
	"github.com/iudanet/facegate/internal/server/biometric"
	"github.com/iudanet/facegate/internal/server/face"
	"github.com/iudanet/facegate/internal/server/notify"
	"github.com/iudanet/facegate/internal/server/session"
	"github.com/iudanet/facegate/internal/server/storage"
	"github.com/iudanet/facegate/internal/server/storage/memory"
)

// mockAccounts - хранилище аккаунтов в памяти
type mockAccounts struct {
	byEmail      map[string]*models.Account
	getErr       error
	lastLoginErr error
	mu           sync.Mutex
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{byEmail: make(map[string]*models.Account)}
}

func (m *mockAccounts) CreateAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[account.Email]; ok {
		return storage.ErrAccountAlreadyExists
	}
	cp := *account
	m.byEmail[account.Email] = &cp
	return nil
}

func (m *mockAccounts) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.byEmail[email]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) UpdatePassword(ctx context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return storage.ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *mockAccounts) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLoginErr != nil {
		return m.lastLoginErr
	}
	for _, a := range m.byEmail {
		if a.ID == id {
			a.LastLogin = &at
			return nil
		}
	}
	return storage.ErrAccountNotFound
}

// mockFaces - реестр лиц с заданными ответами
type mockFaces struct {
	enrollErr error
	loginErr  error
	account   *models.Account
}

func (m *mockFaces) Enroll(ctx context.Context, email string, image []byte) error {
	return m.enrollErr
}

func (m *mockFaces) LoginByFace(ctx context.Context, image []byte) (*models.Account, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.account, nil
}

// outbox собирает отправленные сообщения
type outbox struct {
	err  error
	msgs []notify.Message
	mu   sync.Mutex
}

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) notify.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	return o.msgs[len(o.msgs)-1]
}

type testEnv struct {
	svc      *Service
	accounts *mockAccounts
	faces    *mockFaces
	outbox   *outbox
	sessions *session.Service
	otps     *memory.SecretStore
	resets   *memory.SecretStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	sessions, err := session.NewService([]byte("gateway-test-secret"))
	require.NoError(t, err)

	env := &testEnv{
		accounts: newMockAccounts(),
		faces:    &mockFaces{},
		outbox:   &outbox{},
		sessions: sessions,
		otps:     memory.NewSecretStore(10 * time.Minute),
		resets:   memory.NewSecretStore(15 * time.Minute),
	}
	if cfg.ResetURL == "" {
		cfg.ResetURL = "http://localhost:3000/reset-password"
	}

	env.svc = New(Deps{
		Accounts:    env.accounts,
		OTPs:        env.otps,
		ResetTokens: env.resets,
		Sessions:    sessions,
		Faces:       env.faces,
		Dispatcher:  env.outbox,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)

	return env
}

var digits6 = regexp.MustCompile(`^[0-9]{6}$`)

func TestService_Register(t *testing.T) {
	tests := []struct {
		wantErr  error
		name     string
		email    string
		password string
		confirm  string
	}{
		{name: "success", email: "a@x.com", password: "pw123456", confirm: "pw123456"},
		{name: "mismatch", email: "a@x.com", password: "pw123456", confirm: "pw654321", wantErr: ErrPasswordMismatch},
		{name: "invalid email", email: "not-an-email", password: "pw123456", confirm: "pw123456", wantErr: ErrValidation},
		{name: "short password", email: "a@x.com", password: "short", confirm: "short", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			err := env.svc.Register(context.Background(), tt.email, tt.password, tt.confirm)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			acc, err := env.accounts.GetAccountByEmail(context.Background(), tt.email)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, acc.PasswordHash)
			assert.NotContains(t, acc.PasswordHash, tt.password)
			assert.True(t, strings.HasPrefix(acc.PasswordHash, "$2"))
		})
	}
}

func TestService_Register_Duplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})

	require.NoError(t, env.svc.Register(ctx, "a@x.com", "pw123456", "pw123456"))
	err := env.svc.Register(ctx, "a@x.com", "other-pass", "other-pass")
	assert.ErrorIs(t, err, ErrAccountExists)

	// Регистр email учитывается
	assert.NoError(t, env.svc.Register(ctx, "A@x.com", "pw123456", "pw123456"))
}

func TestService_LoginPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	require.NoError(t, env.svc.Register(ctx, "a@x.com", "pw123456", "pw123456"))

	sess, err := env.svc.LoginPassword(ctx, "a@x.com", "pw123456")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.WithinDuration(t, time.Now().Add(session.DefaultTTL), sess.ExpiresAt, 2*time.Second)

	id, err := env.sessions.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)

	acc, err := env.accounts.GetAccountByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotNil(t, acc.LastLogin)

	_, err = env.svc.LoginPassword(ctx, "a@x.com", "wrongpw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.LoginPassword(ctx, "nobody@x.com", "pw123456")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestService_LoginPassword_Conceal(t *testing.T) {
	env := newTestEnv(t, Config{ConcealAccounts: true})

	_, err := env.svc.LoginPassword(context.Background(), "nobody@x.com", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
}

func TestService_LoginPassword_LastLoginFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	require.NoError(t, env.svc.Register(ctx, "a@x.com", "pw123456", "pw123456"))

	env.accounts.lastLoginErr = errors.New("database is locked")
	_, err := env.svc.LoginPassword(ctx, "a@x.com", "pw123456")
	assert.NoError(t, err)
}

func TestService_LoginPassword_StorageError(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.accounts.getErr = errors.New("disk I/O error")

	_, err := env.svc.LoginPassword(context.Background(), "a@x.com", "pw123456")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_OTP(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})

	require.NoError(t, env.svc.SendOTP(ctx, "a@x.com"))

	code, err := env.otps.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Regexp(t, digits6, code)

	msg := env.outbox.last(t)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Contains(t, msg.Body, code)

	require.NoError(t, env.svc.VerifyOTP(ctx, "a@x.com", code))

	// Повторная проверка того же кода не проходит
	assert.ErrorIs(t, env.svc.VerifyOTP(ctx, "a@x.com", code), ErrInvalidOTP)
}

func TestService_OTP_WrongCodeBurns(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})

	require.NoError(t, env.svc.SendOTP(ctx, "a@x.com"))
	code, err := env.otps.Get(ctx, "a@x.com")
	require.NoError(t, err)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, env.svc.VerifyOTP(ctx, "a@x.com", wrong), ErrInvalidOTP)
	assert.ErrorIs(t, env.svc.VerifyOTP(ctx, "a@x.com", code), ErrInvalidOTP)
}

func TestService_OTP_ResendReplaces(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})

	require.NoError(t, env.svc.SendOTP(ctx, "a@x.com"))
	require.NoError(t, env.svc.SendOTP(ctx, "a@x.com"))

	code, err := env.otps.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, env.outbox.last(t).Body, code)
	assert.NoError(t, env.svc.VerifyOTP(ctx, "a@x.com", code))
}

func TestService_OTP_Concurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	require.NoError(t, env.svc.SendOTP(ctx, "a@x.com"))
	code, err := env.otps.Get(ctx, "a@x.com")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = env.svc.VerifyOTP(ctx, "a@x.com", code)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestService_SendOTP_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})

	assert.ErrorIs(t, env.svc.SendOTP(ctx, "bad"), ErrValidation)

	env.outbox.err = errors.New("smtp down")
	assert.ErrorIs(t, env.svc.SendOTP(ctx, "a@x.com"), ErrUpstream)
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	require.NoError(t, env.svc.Register(ctx, "a@x.com", "pw123456", "pw123456"))

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))

	msg := env.outbox.last(t)
	assert.Equal(t, "Password Reset", msg.Subject)
	token := extractToken(t, msg.Body)
	assert.Len(t, token, 64)

	require.NoError(t, env.svc.ResetPassword(ctx, token, "newpass99"))

	_, err := env.svc.LoginPassword(ctx, "a@x.com", "newpass99")
	assert.NoError(t, err)
	_, err = env.svc.LoginPassword(ctx, "a@x.com", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Токен одноразовый
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, token, "another99"), ErrInvalidToken)
}

func TestService_PasswordReset_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	require.NoError(t, env.svc.Register(ctx, "a@x.com", "pw123456", "pw123456"))

	assert.ErrorIs(t, env.svc.RequestPasswordReset(ctx, "nobody@x.com"), ErrAccountNotFound)
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, "no-such-token", "newpass99"), ErrInvalidToken)

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))
	token := extractToken(t, env.outbox.last(t).Body)
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, token, "short"), ErrValidation)

	// Слабый пароль не расходует ссылку
	require.NoError(t, env.svc.ResetPassword(ctx, token, "newpass99"))
	_, err := env.svc.LoginPassword(ctx, "a@x.com", "newpass99")
	require.NoError(t, err)

	env.outbox.err = errors.New("smtp down")
	assert.ErrorIs(t, env.svc.RequestPasswordReset(ctx, "a@x.com"), ErrUpstream)
}

func TestService_PasswordReset_Conceal(t *testing.T) {
	env := newTestEnv(t, Config{ConcealAccounts: true})

	require.NoError(t, env.svc.RequestPasswordReset(context.Background(), "nobody@x.com"))
	assert.Empty(t, env.outbox.msgs)
}

func TestService_EnrollFace(t *testing.T) {
	tests := []struct {
		enrollErr error
		wantErr   error
		name      string
		email     string
		image     []byte
	}{
		{name: "success", email: "a@x.com", image: []byte("img")},
		{name: "empty email", image: []byte("img"), wantErr: ErrValidation},
		{name: "empty image", email: "a@x.com", wantErr: ErrValidation},
		{name: "duplicate", email: "a@x.com", image: []byte("img"), enrollErr: biometric.ErrDuplicateFace, wantErr: biometric.ErrDuplicateFace},
		{name: "not live", email: "a@x.com", image: []byte("img"), enrollErr: biometric.ErrLivenessFailed, wantErr: biometric.ErrLivenessFailed},
		{name: "unknown account", email: "a@x.com", image: []byte("img"), enrollErr: storage.ErrAccountNotFound, wantErr: ErrAccountNotFound},
		{name: "already enrolled", email: "a@x.com", image: []byte("img"), enrollErr: storage.ErrFaceAlreadyEnrolled, wantErr: storage.ErrFaceAlreadyEnrolled},
		{name: "timeout", email: "a@x.com", image: []byte("img"), enrollErr: fmt.Errorf("x: %w", face.ErrTimeout), wantErr: ErrUpstreamTimeout},
		{name: "unavailable", email: "a@x.com", image: []byte("img"), enrollErr: fmt.Errorf("x: %w", face.ErrUnavailable), wantErr: ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			env.faces.enrollErr = tt.enrollErr

			err := env.svc.EnrollFace(context.Background(), tt.email, tt.image)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_LoginByFace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	require.NoError(t, env.svc.Register(ctx, "a@x.com", "pw123456", "pw123456"))
	acc, err := env.accounts.GetAccountByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	env.faces.account = acc
	res, err := env.svc.LoginByFace(ctx, []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", res.Email)
	assert.Equal(t, acc.ID, res.AccountID)

	id, err := env.sessions.Verify(res.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id.AccountID)

	env.faces.loginErr = biometric.ErrNoMatch
	_, err = env.svc.LoginByFace(ctx, []byte("img"))
	assert.ErrorIs(t, err, biometric.ErrNoMatch)

	env.faces.loginErr = fmt.Errorf("wrap: %w", face.ErrTimeout)
	_, err = env.svc.LoginByFace(ctx, []byte("img"))
	assert.ErrorIs(t, err, ErrUpstreamTimeout)

	_, err = env.svc.LoginByFace(ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func extractToken(t *testing.T, body string) string {
	t.Helper()

	m := regexp.MustCompile(`href="([^"]+)"`).FindStringSubmatch(body)
	require.Len(t, m, 2)

	u, err := url.Parse(strings.ReplaceAll(m[1], "&amp;", "&"))
	require.NoError(t, err)
	assert.Equal(t, "/reset-password", u.Path)
	return u.Query().Get("token")
}
