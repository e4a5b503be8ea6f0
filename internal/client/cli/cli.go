package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iudanet/facegate/internal/client/iocli"
	"github.com/iudanet/facegate/internal/client/storage"
	"github.com/iudanet/facegate/pkg/api"
)

// PasswordEnv задает пароль для неинтерактивного запуска
const PasswordEnv = "FACEGATE_PASSWORD"

// ErrNotLoggedIn возвращается командами, которым нужна сохраненная сессия
var ErrNotLoggedIn = errors.New("not logged in, run 'facegate login' or 'facegate face-login' first")

// ErrUnknownCommand возвращается для неизвестной команды
var ErrUnknownCommand = errors.New("unknown command")

// Gateway описывает вызовы сервера, которые использует клиент
type Gateway interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.MessageResponse, error)
	LoginPassword(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, req api.OTPVerifyRequest) (*api.OTPVerifyResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req api.PasswordResetConfirm) error
	StoreFace(ctx context.Context, email string, image []byte, contentType string) (*api.MessageResponse, error)
	MatchFace(ctx context.Context, image []byte, contentType string) (*api.FaceMatchResponse, error)
	Me(ctx context.Context, token string) (*api.MeResponse, error)
	Health(ctx context.Context) (*api.HealthResponse, error)
}

// Passwords задает источники пароля помимо интерактивного ввода
type Passwords struct {
	FromFile string
	FromArgs string
}

type Cli struct {
	gateway   Gateway
	sessions  storage.SessionStorage
	io        iocli.IO
	now       func() time.Time
	passwords Passwords
	serverURL string
}

func New(gateway Gateway, sessions storage.SessionStorage, io iocli.IO, serverURL string, passwords Passwords) *Cli {
	return &Cli{
		gateway:   gateway,
		sessions:  sessions,
		io:        io,
		now:       time.Now,
		passwords: passwords,
		serverURL: serverURL,
	}
}

// Run выполняет команду с аргументами
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "me":
		return c.runMe(ctx)
	case "otp-send":
		return c.runOTPSend(ctx, args)
	case "otp-verify":
		return c.runOTPVerify(ctx, args)
	case "reset-request":
		return c.runResetRequest(ctx, args)
	case "reset":
		return c.runReset(ctx, args)
	case "face-enroll":
		return c.runFaceEnroll(ctx, args)
	case "face-login":
		return c.runFaceLogin(ctx, args)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// getPassword retrieves the account password with priority:
// 1. Environment variable FACEGATE_PASSWORD
// 2. File specified in Passwords.FromFile
// 3. Command-line parameter
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(prompt string) (string, error) {
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, nil
	}

	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// interactivePassword reports whether getPassword falls back to the prompt
func (c *Cli) interactivePassword() bool {
	return os.Getenv(PasswordEnv) == "" && c.passwords == (Passwords{})
}

// argOrInput возвращает args[i] или запрашивает значение у пользователя
func (c *Cli) argOrInput(args []string, i int, prompt string) (string, error) {
	if len(args) > i && args[i] != "" {
		return args[i], nil
	}
	value, err := c.io.ReadInput(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", strings.TrimSuffix(strings.TrimSpace(prompt), ":"))
	}
	return value, nil
}

// saveSession сохраняет выданный сервером токен
func (c *Cli) saveSession(ctx context.Context, email, token, method string, expiresAt time.Time) error {
	sess := &storage.Session{
		Email:     email,
		Token:     token,
		Method:    method,
		ServerURL: c.serverURL,
		ExpiresAt: expiresAt,
	}
	if err := c.sessions.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// PrintUsage печатает справку клиента
func PrintUsage(out iocli.IO) {
	out.Println("Facegate Client")
	out.Println()
	out.Println("Usage:")
	out.Println("  facegate [OPTIONS] COMMAND [ARGS]")
	out.Println()
	out.Println("Options:")
	out.Println("  --version             Show version information")
	out.Println("  --server URL          Server URL (default: http://localhost:8080)")
	out.Println("  --db PATH             Path to local session database (default: facegate-client.db)")
	out.Println("  --password PASSWORD   Account password (not recommended, use env var or file)")
	out.Println("  --password-file PATH  Path to file containing account password")
	out.Println()
	out.Println("Password Priority (highest to lowest):")
	out.Println("  1. FACEGATE_PASSWORD environment variable")
	out.Println("  2. --password-file (file path)")
	out.Println("  3. --password (command line)")
	out.Println("  4. Interactive prompt (fallback)")
	out.Println()
	out.Println("Commands:")
	out.Println("  register                     Register new account")
	out.Println("  login                        Login with email and password")
	out.Println("  face-enroll <image> [email]  Enroll a face image for an account")
	out.Println("  face-login <image>           Login with a face image")
	out.Println("  otp-send [email]             Send a one-time code to email")
	out.Println("  otp-verify [email] [code]    Verify a one-time code")
	out.Println("  reset-request [email]        Request a password reset link")
	out.Println("  reset [token]                Set a new password using the link token")
	out.Println("  me                           Show the current session owner")
	out.Println("  logout                       Forget the saved session")
	out.Println("  status                       Show server and session status")
	out.Println()
	out.Println("Examples:")
	out.Println("  facegate register")
	out.Println("  facegate face-enroll ./me.jpg user@example.com")
	out.Println("  facegate face-login ./me.jpg")
	out.Println("  facegate --server https://auth.example.com otp-send user@example.com")
}
