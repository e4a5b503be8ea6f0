// Package app assembles the server: storage, services, HTTP routing
// and the background sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/facegate/internal/crypto"
	"github.com/iudanet/facegate/internal/server/biometric"
	"github.com/iudanet/facegate/internal/server/config"
	"github.com/iudanet/facegate/internal/server/face"
	"github.com/iudanet/facegate/internal/server/gateway"
	"github.com/iudanet/facegate/internal/server/handlers"
	"github.com/iudanet/facegate/internal/server/metrics"
	"github.com/iudanet/facegate/internal/server/middleware"
	"github.com/iudanet/facegate/internal/server/notify"
	"github.com/iudanet/facegate/internal/server/session"
	"github.com/iudanet/facegate/internal/server/storage"
	"github.com/iudanet/facegate/internal/server/storage/boltdb"
	"github.com/iudanet/facegate/internal/server/storage/memory"
	"github.com/iudanet/facegate/internal/server/storage/sqlite"
)

// Пути с ограничением частоты запросов
var authPaths = []string{
	"/api/users/register",
	"/api/users/login-password",
	"/api/users/otp/send",
	"/api/users/otp/verify",
	"/api/password/request",
	"/api/password/reset",
	"/api/face/match",
}

const (
	// faceCallsPerEnroll - число обращений к face-сервису при регистрации лица:
	// проверка дубликата, liveness, verify, extract
	faceCallsPerEnroll = 4
	minWriteTimeout    = 30 * time.Second
	writeTimeoutMargin = 5 * time.Second
)

// App is an assembled server
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher notify.Dispatcher

	accounts *sqlite.Storage
	bolt     *boltdb.Storage
	otps     storage.SecretStorage
	resets   storage.SecretStorage

	metrics *metrics.Metrics
	limiter *middleware.PathRateLimiter
	handler http.Handler
	version string
}

// Option configures App
type Option func(*App)

// WithDispatcher overrides the out-of-band message dispatcher
func WithDispatcher(d notify.Dispatcher) Option {
	return func(a *App) {
		if d != nil {
			a.dispatcher = d
		}
	}
}

// New opens storage and wires all components
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		version: version,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.dispatcher == nil {
		a.dispatcher = newDispatcher(cfg.SMTP, logger)
	}

	codec, err := crypto.NewCodec(cfg.Security.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	sessions, err := session.NewService([]byte(cfg.Security.SessionSecret), session.WithTTL(cfg.Security.SessionTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create session service: %w", err)
	}

	a.accounts, err = sqlite.New(ctx, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open account storage: %w", err)
	}

	if err := a.openSecrets(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	faces := face.NewClient(cfg.Face.URL, face.WithTimeout(cfg.Face.Timeout))
	registry := biometric.NewRegistry(a.accounts, faces, codec, logger, biometric.WithRecorder(a.metrics))

	svc := gateway.New(gateway.Deps{
		Accounts:    a.accounts,
		OTPs:        a.otps,
		ResetTokens: a.resets,
		Sessions:    sessions,
		Faces:       registry,
		Dispatcher:  a.dispatcher,
		Logger:      logger,
		Recorder:    a.metrics,
	}, gateway.Config{
		ResetURL:        cfg.Security.ResetURL,
		ConcealAccounts: cfg.Server.ConcealAccounts,
	})

	a.handler = a.routes(svc, sessions)
	return a, nil
}

func (a *App) openSecrets(ctx context.Context) error {
	sec := a.cfg.Security

	switch a.cfg.Storage.SecretsBackend {
	case config.SecretsBolt:
		db, err := boltdb.New(ctx, a.cfg.Storage.BoltPath)
		if err != nil {
			return fmt.Errorf("failed to open secret storage: %w", err)
		}
		a.bolt = db

		otps, err := db.Namespace(boltdb.BucketOTP, sec.OTPTTL)
		if err != nil {
			return err
		}
		resets, err := db.Namespace(boltdb.BucketPasswordReset, sec.ResetTTL)
		if err != nil {
			return err
		}
		a.otps, a.resets = otps, resets

	default:
		a.otps = memory.NewSecretStore(sec.OTPTTL)
		a.resets = memory.NewSecretStore(sec.ResetTTL)
	}
	return nil
}

func newDispatcher(cfg config.SMTPConfig, logger *slog.Logger) notify.Dispatcher {
	if cfg.Host == "" {
		logger.Warn("smtp host is not configured, messages are only logged")
		return notify.NewLogDispatcher(logger, cfg.LogBody)
	}
	return notify.NewSMTPDispatcher(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

// routes строит маршруты и цепочку middleware
func (a *App) routes(svc *gateway.Service, sessions *session.Service) http.Handler {
	users := handlers.NewUsersHandler(a.logger, svc)
	password := handlers.NewPasswordHandler(a.logger, svc)
	faces := handlers.NewFaceHandler(a.logger, svc)
	health := handlers.NewHealthHandler(a.logger, a.accounts, a.version)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users/register", users.Register)
	mux.HandleFunc("POST /api/users/login-password", users.LoginPassword)
	mux.HandleFunc("POST /api/users/otp/send", users.SendOTP)
	mux.HandleFunc("POST /api/users/otp/verify", users.VerifyOTP)
	mux.Handle("GET /api/users/me", middleware.AuthMiddleware(a.logger, sessions)(http.HandlerFunc(users.Me)))

	mux.HandleFunc("POST /api/password/request", password.Request)
	mux.HandleFunc("POST /api/password/reset", password.Reset)

	mux.HandleFunc("POST /api/face/store", faces.Store)
	mux.HandleFunc("POST /api/face/match", faces.Match)

	mux.HandleFunc("GET /healthz", health.Health)
	mux.Handle("GET /metrics", a.metrics.Handler())

	srv := a.cfg.Server
	limits := make([]middleware.PathRateLimit, 0, len(authPaths))
	for _, p := range authPaths {
		limits = append(limits, middleware.PathRateLimit{Path: p, Rate: srv.AuthRateLimit, Window: srv.AuthRateWindow})
	}
	a.limiter = middleware.NewPathRateLimiter(limits, srv.DefaultRateLimit, srv.AuthRateWindow, srv.TrustProxy, a.logger)

	// MetricsMiddleware оборачивает mux напрямую, чтобы видеть r.Pattern
	var handler http.Handler = middleware.MetricsMiddleware(a.metrics)(mux)
	handler = middleware.MaxBodyBytes(srv.MaxBodyBytes)(handler)
	handler = a.limiter.Middleware(handler)
	handler = middleware.CORSMiddleware(srv.CORSOrigins)(handler)
	handler = middleware.LoggingWithSkip(a.logger, []string{"/healthz", "/metrics"})(handler)
	handler = middleware.RecoveryMiddleware(a.logger)(handler)
	handler = middleware.RequestIDMiddleware(handler)

	return handler
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Metrics returns server collectors
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Sweep runs one purge pass over the ephemeral secret stores
func (a *App) Sweep(ctx context.Context) int {
	n := storage.SweepOnce(ctx, a.logger, a.otps, a.resets)
	a.metrics.SecretsPurged(n)
	return n
}

// Run serves HTTP on the configured address until ctx is cancelled,
// then shuts down gracefully
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(a.cfg.Face.Timeout),
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go storage.RunSweeper(sweepCtx, a.logger, a.cfg.Storage.SweepInterval, a.metrics.SecretsPurged, a.otps, a.resets)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server started", slog.String("addr", ln.Addr().String()), slog.String("version", a.version))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// writeTimeout covers the slowest handler: a face enrollment making
// faceCallsPerEnroll sequential round trips of up to faceTimeout each
func writeTimeout(faceTimeout time.Duration) time.Duration {
	return max(minWriteTimeout, faceCallsPerEnroll*faceTimeout+writeTimeoutMargin)
}

// Close releases storage and background resources
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}

	var errs []error
	if a.bolt != nil {
		if err := a.bolt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close secret storage: %w", err))
		}
	}
	if a.accounts != nil {
		if err := a.accounts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close account storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
