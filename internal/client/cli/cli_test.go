package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clientapi "github.com/iudanet/facegate/internal/client/api"
	"github.com/iudanet/facegate/internal/client/iocli"
	"github.com/iudanet/facegate/internal/client/storage"
	"github.com/iudanet/facegate/pkg/api"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway записывает запросы и возвращает заданные ответы
type fakeGateway struct {
	err error

	registered  *api.RegisterRequest
	login       *api.LoginRequest
	otpSent     string
	otpVerify   *api.OTPVerifyRequest
	resetFor    string
	reset       *api.PasswordResetConfirm
	storedEmail string
	storedType  string
	stored      []byte
	matched     []byte
	meToken     string

	health   *api.HealthResponse
	me       *api.MeResponse
	verified bool
}

func (g *fakeGateway) Register(_ context.Context, req api.RegisterRequest) (*api.MessageResponse, error) {
	g.registered = &req
	if g.err != nil {
		return nil, g.err
	}
	return &api.MessageResponse{Message: "User registered successfully"}, nil
}

func (g *fakeGateway) LoginPassword(_ context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	g.login = &req
	if g.err != nil {
		return nil, g.err
	}
	return &api.TokenResponse{Token: "pw-token", ExpiresAt: testNow.Add(5 * time.Minute)}, nil
}

func (g *fakeGateway) SendOTP(_ context.Context, email string) error {
	g.otpSent = email
	return g.err
}

func (g *fakeGateway) VerifyOTP(_ context.Context, req api.OTPVerifyRequest) (*api.OTPVerifyResponse, error) {
	g.otpVerify = &req
	if g.err != nil {
		return nil, g.err
	}
	return &api.OTPVerifyResponse{Verified: g.verified}, nil
}

func (g *fakeGateway) RequestPasswordReset(_ context.Context, email string) error {
	g.resetFor = email
	return g.err
}

func (g *fakeGateway) ResetPassword(_ context.Context, req api.PasswordResetConfirm) error {
	g.reset = &req
	return g.err
}

func (g *fakeGateway) StoreFace(_ context.Context, email string, image []byte, contentType string) (*api.MessageResponse, error) {
	g.storedEmail, g.stored, g.storedType = email, image, contentType
	if g.err != nil {
		return nil, g.err
	}
	return &api.MessageResponse{Message: "Face stored successfully"}, nil
}

func (g *fakeGateway) MatchFace(_ context.Context, image []byte, _ string) (*api.FaceMatchResponse, error) {
	g.matched = image
	if g.err != nil {
		return nil, g.err
	}
	return &api.FaceMatchResponse{Email: "a@x.io", Token: "face-token", ExpiresAt: testNow.Add(5 * time.Minute)}, nil
}

func (g *fakeGateway) Me(_ context.Context, token string) (*api.MeResponse, error) {
	g.meToken = token
	if g.err != nil {
		return nil, g.err
	}
	return g.me, nil
}

func (g *fakeGateway) Health(context.Context) (*api.HealthResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.health, nil
}

// memSessions хранит сессию в памяти
type memSessions struct {
	sess *storage.Session
}

func (m *memSessions) SaveSession(_ context.Context, s *storage.Session) error {
	m.sess = s
	return nil
}

func (m *memSessions) GetSession(context.Context) (*storage.Session, error) {
	if m.sess == nil {
		return nil, storage.ErrSessionNotFound
	}
	return m.sess, nil
}

func (m *memSessions) DeleteSession(context.Context) error {
	if m.sess == nil {
		return storage.ErrSessionNotFound
	}
	m.sess = nil
	return nil
}

func (m *memSessions) HasValidSession(context.Context) (bool, error) {
	return m.sess != nil && !m.sess.Expired(testNow), nil
}

type testCli struct {
	*Cli
	gateway  *fakeGateway
	sessions *memSessions
	out      *bytes.Buffer
}

// newTestCli создает Cli со скриптованным вводом
func newTestCli(t *testing.T, input string, passwords Passwords) *testCli {
	t.Helper()
	t.Setenv(PasswordEnv, "")

	gw := &fakeGateway{}
	sessions := &memSessions{}
	out := &bytes.Buffer{}

	c := New(gw, sessions, iocli.NewStdioFrom(strings.NewReader(input), out), "http://localhost:8080", passwords)
	c.now = func() time.Time { return testNow }

	return &testCli{Cli: c, gateway: gw, sessions: sessions, out: out}
}

func TestRun_UnknownCommand(t *testing.T) {
	c := newTestCli(t, "", Passwords{})
	err := c.Run(context.Background(), "sync", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

// TestGetPassword_Priority проверяет приоритет источников пароля
func TestGetPassword_Priority(t *testing.T) {
	file := filepath.Join(t.TempDir(), "password.txt")
	require.NoError(t, os.WriteFile(file, []byte("from_file_123\n"), 0600))

	tests := []struct {
		name      string
		env       string
		input     string
		passwords Passwords
		want      string
	}{
		{name: "env wins", env: "from_env_123", passwords: Passwords{FromFile: file, FromArgs: "from_args_123"}, want: "from_env_123"},
		{name: "file over args", passwords: Passwords{FromFile: file, FromArgs: "from_args_123"}, want: "from_file_123"},
		{name: "args", passwords: Passwords{FromArgs: "from_args_123"}, want: "from_args_123"},
		{name: "prompt", input: "typed_123\n", want: "typed_123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCli(t, tt.input, tt.passwords)
			t.Setenv(PasswordEnv, tt.env)

			got, err := c.getPassword("Password: ")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPassword_Errors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0600))

	tests := []struct {
		name      string
		input     string
		passwords Passwords
		wantErr   string
	}{
		{name: "missing file", passwords: Passwords{FromFile: filepath.Join(t.TempDir(), "nope")}, wantErr: "failed to read password file"},
		{name: "empty file", passwords: Passwords{FromFile: empty}, wantErr: "password file is empty"},
		{name: "empty prompt", input: "\n", wantErr: "password cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCli(t, tt.input, tt.passwords)
			_, err := c.getPassword("Password: ")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegister(t *testing.T) {
	c := newTestCli(t, "a@x.io\npassword1\npassword1\n", Passwords{})

	require.NoError(t, c.Run(context.Background(), "register", nil))

	require.NotNil(t, c.gateway.registered)
	assert.Equal(t, api.RegisterRequest{Email: "a@x.io", Password: "password1", ConfirmPassword: "password1"}, *c.gateway.registered)
	assert.Contains(t, c.out.String(), "User registered successfully")
}

func TestRegister_NonInteractiveSkipsConfirm(t *testing.T) {
	c := newTestCli(t, "a@x.io\n", Passwords{FromArgs: "password1"})

	require.NoError(t, c.Run(context.Background(), "register", nil))
	assert.Equal(t, "password1", c.gateway.registered.ConfirmPassword)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "bad email", input: "not-an-email\n", wantErr: "invalid email"},
		{name: "short password", input: "a@x.io\nshort\n", wantErr: "invalid password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCli(t, tt.input, Passwords{})
			err := c.Run(context.Background(), "register", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, c.gateway.registered)
		})
	}
}

func TestLogin_SavesSession(t *testing.T) {
	c := newTestCli(t, "a@x.io\npassword1\n", Passwords{})

	require.NoError(t, c.Run(context.Background(), "login", nil))

	assert.Equal(t, "a@x.io", c.gateway.login.Email)
	require.NotNil(t, c.sessions.sess)
	assert.Equal(t, "pw-token", c.sessions.sess.Token)
	assert.Equal(t, "password", c.sessions.sess.Method)
	assert.Equal(t, "http://localhost:8080", c.sessions.sess.ServerURL)
	assert.Contains(t, c.out.String(), "Login successful")
}

func TestLogin_ServerError(t *testing.T) {
	c := newTestCli(t, "a@x.io\nwrongpass\n", Passwords{})
	c.gateway.err = &clientapi.Error{StatusCode: 401, Message: "invalid email or password"}

	err := c.Run(context.Background(), "login", nil)
	require.Error(t, err)
	assert.Nil(t, c.sessions.sess)
}

func TestLogout(t *testing.T) {
	c := newTestCli(t, "", Passwords{})

	require.NoError(t, c.Run(context.Background(), "logout", nil))
	assert.Contains(t, c.out.String(), "Not logged in")

	c.sessions.sess = &storage.Session{Token: "t"}
	require.NoError(t, c.Run(context.Background(), "logout", nil))
	assert.Nil(t, c.sessions.sess)
	assert.Contains(t, c.out.String(), "Logged out")
}

func TestMe(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		c := newTestCli(t, "", Passwords{})
		assert.ErrorIs(t, c.Run(context.Background(), "me", nil), ErrNotLoggedIn)
	})

	t.Run("success", func(t *testing.T) {
		c := newTestCli(t, "", Passwords{})
		c.sessions.sess = &storage.Session{Token: "jwt"}
		c.gateway.me = &api.MeResponse{AccountID: "acc-1", Email: "a@x.io"}

		require.NoError(t, c.Run(context.Background(), "me", nil))
		assert.Equal(t, "jwt", c.gateway.meToken)
		assert.Contains(t, c.out.String(), "acc-1")
	})

	t.Run("rejected token drops session", func(t *testing.T) {
		c := newTestCli(t, "", Passwords{})
		c.sessions.sess = &storage.Session{Token: "old"}
		c.gateway.err = &clientapi.Error{StatusCode: 401}

		err := c.Run(context.Background(), "me", nil)
		assert.ErrorIs(t, err, ErrNotLoggedIn)
		assert.Nil(t, c.sessions.sess)
	})
}

func TestStatus(t *testing.T) {
	c := newTestCli(t, "", Passwords{})
	c.gateway.health = &api.HealthResponse{Status: "ok", Version: "1.2.3"}
	c.sessions.sess = &storage.Session{Email: "a@x.io", Method: "face", ExpiresAt: testNow.Add(90 * time.Second)}

	require.NoError(t, c.Run(context.Background(), "status", nil))

	out := c.out.String()
	assert.Contains(t, out, "Server status: ok 1.2.3")
	assert.Contains(t, out, "Session: active (a@x.io, via face)")
	assert.Contains(t, out, "Expires in: 1m30s")
}

func TestStatus_ExpiredAndUnreachable(t *testing.T) {
	c := newTestCli(t, "", Passwords{})
	c.gateway.err = &clientapi.Error{StatusCode: 503}
	c.sessions.sess = &storage.Session{Email: "a@x.io", Method: "password", ExpiresAt: testNow}

	require.NoError(t, c.Run(context.Background(), "status", nil))

	out := c.out.String()
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "Session: expired")
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	PrintUsage(iocli.NewStdioFrom(strings.NewReader(""), &out))

	for _, cmd := range []string{"register", "login", "face-enroll", "face-login", "otp-send", "otp-verify", "reset-request", "reset", "me", "logout", "status"} {
		assert.Contains(t, out.String(), "  "+cmd)
	}
}
