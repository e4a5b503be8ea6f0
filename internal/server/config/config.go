// Package config loads server settings from defaults, an optional TOML file,
// FACEGATE_* environment variables and command line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// ConfigPathEnv names the environment variable with the TOML file path
const ConfigPathEnv = "FACEGATE_CONFIG"

// Secret backends
const (
	SecretsMemory = "memory"
	SecretsBolt   = "bolt"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Security  SecurityConfig  `toml:"security"`
	Face      FaceConfig      `toml:"face"`
	SMTP      SMTPConfig      `toml:"smtp"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string        `toml:"addr"             env:"FACEGATE_ADDR"`
	CORSOrigins     []string      `toml:"cors_origins"     env:"FACEGATE_CORS_ORIGINS" envSeparator:","`
	MaxBodyBytes    int64         `toml:"max_body_bytes"   env:"FACEGATE_MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"FACEGATE_SHUTDOWN_TIMEOUT"`
	// AuthRateLimit - запросов в AuthRateWindow с одного IP к endpoint входа и сброса
	AuthRateLimit  int           `toml:"auth_rate_limit"  env:"FACEGATE_AUTH_RATE_LIMIT"`
	AuthRateWindow time.Duration `toml:"auth_rate_window" env:"FACEGATE_AUTH_RATE_WINDOW"`
	// DefaultRateLimit - лимит для остальных путей, 0 отключает
	DefaultRateLimit int  `toml:"default_rate_limit" env:"FACEGATE_DEFAULT_RATE_LIMIT"`
	TrustProxy       bool `toml:"trust_proxy"        env:"FACEGATE_TRUST_PROXY"`
	ConcealAccounts  bool `toml:"conceal_accounts"   env:"FACEGATE_CONCEAL_ACCOUNTS"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	DBPath         string        `toml:"db_path"         env:"FACEGATE_DB_PATH"`
	SecretsBackend string        `toml:"secrets_backend" env:"FACEGATE_SECRETS_BACKEND"`
	BoltPath       string        `toml:"bolt_path"       env:"FACEGATE_BOLT_PATH"`
	SweepInterval  time.Duration `toml:"sweep_interval"  env:"FACEGATE_SWEEP_INTERVAL"`
}

// SecurityConfig holds secrets and lifetimes of issued credentials
type SecurityConfig struct {
	SessionSecret    string        `toml:"session_secret"    env:"FACEGATE_SESSION_SECRET"`
	EncryptionSecret string        `toml:"encryption_secret" env:"FACEGATE_ENCRYPTION_SECRET"`
	ResetURL         string        `toml:"reset_url"         env:"FACEGATE_RESET_URL"`
	SessionTTL       time.Duration `toml:"session_ttl"       env:"FACEGATE_SESSION_TTL"`
	OTPTTL           time.Duration `toml:"otp_ttl"           env:"FACEGATE_OTP_TTL"`
	ResetTTL         time.Duration `toml:"reset_ttl"         env:"FACEGATE_RESET_TTL"`
}

// FaceConfig points at the external face-analysis service
type FaceConfig struct {
	URL     string        `toml:"url"     env:"FACEGATE_FACE_URL"`
	Timeout time.Duration `toml:"timeout" env:"FACEGATE_FACE_TIMEOUT"`
}

// SMTPConfig configures mail delivery. Empty Host switches to the log dispatcher
type SMTPConfig struct {
	Host     string `toml:"host"     env:"FACEGATE_SMTP_HOST"`
	Username string `toml:"username" env:"FACEGATE_SMTP_USERNAME"`
	Password string `toml:"password" env:"FACEGATE_SMTP_PASSWORD"`
	From     string `toml:"from"     env:"FACEGATE_SMTP_FROM"`
	Port     int    `toml:"port"     env:"FACEGATE_SMTP_PORT"`
	// LogBody выводит тело письма в лог (только для разработки)
	LogBody bool `toml:"log_body" env:"FACEGATE_NOTIFY_LOG_BODY"`
}

// LogConfig configures slog
type LogConfig struct {
	Level  string `toml:"level"  env:"FACEGATE_LOG_LEVEL"`
	Format string `toml:"format" env:"FACEGATE_LOG_FORMAT"`
}

// TelemetryConfig configures tracing export. Empty endpoint disables tracing
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint" env:"FACEGATE_OTLP_ENDPOINT"`
	ServiceName  string `toml:"service_name"  env:"FACEGATE_SERVICE_NAME"`
}

// Default returns configuration with all defaults applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: 10 * time.Second,
			AuthRateLimit:   10,
			AuthRateWindow:  time.Minute,
		},
		Storage: StorageConfig{
			DBPath:         "facegate.db",
			SecretsBackend: SecretsMemory,
			BoltPath:       "facegate-secrets.db",
			SweepInterval:  time.Minute,
		},
		Security: SecurityConfig{
			ResetURL:   "http://localhost:3000/reset-password",
			SessionTTL: 5 * time.Minute,
			OTPTTL:     10 * time.Minute,
			ResetTTL:   15 * time.Minute,
		},
		Face: FaceConfig{
			URL:     "http://localhost:5000",
			Timeout: 10 * time.Second,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "no-reply@facegate.local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "facegate",
		},
	}
}

// Load builds the configuration from defaults, file, environment and args.
// args excludes the program name
func Load(args []string, output io.Writer) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("facegate", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		configPath = fs.String("c", "", "path to TOML config file (env "+ConfigPathEnv+")")
		addr       = fs.String("a", "", "listen address")
		dbPath     = fs.String("d", "", "sqlite database path")
		faceURL    = fs.String("face-url", "", "face-analysis service base URL")
		secrets    = fs.String("secrets", "", "ephemeral secrets backend: memory or bolt")
		logLevel   = fs.String("log-level", "", "log level: debug, info, warn, error")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	// Флаги имеют наивысший приоритет, но только если заданы явно
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.Server.Addr = *addr
		case "d":
			cfg.Storage.DBPath = *dbPath
		case "face-url":
			cfg.Face.URL = *faceURL
		case "secrets":
			cfg.Storage.SecretsBackend = *secrets
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Security.SessionSecret == "" {
		add("session secret is required")
	}
	if c.Security.EncryptionSecret == "" {
		add("encryption secret is required")
	}
	if c.Face.URL == "" {
		add("face service url is required")
	} else if _, err := url.ParseRequestURI(c.Face.URL); err != nil {
		add("face service url: %v", err)
	}
	if _, err := url.ParseRequestURI(c.Security.ResetURL); err != nil {
		add("reset url: %v", err)
	}

	for name, d := range map[string]time.Duration{
		"session ttl":    c.Security.SessionTTL,
		"otp ttl":        c.Security.OTPTTL,
		"reset ttl":      c.Security.ResetTTL,
		"face timeout":   c.Face.Timeout,
		"sweep interval": c.Storage.SweepInterval,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}

	switch c.Storage.SecretsBackend {
	case SecretsMemory:
	case SecretsBolt:
		if c.Storage.BoltPath == "" {
			add("bolt path is required for bolt secrets backend")
		}
	default:
		add("unknown secrets backend %q", c.Storage.SecretsBackend)
	}

	if c.Server.AuthRateLimit > 0 && c.Server.AuthRateWindow <= 0 {
		add("auth rate window must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		add("log level: %v", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		add("unknown log format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// NewLogger creates a logger writing to w in the configured format
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
