// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/notevault/internal/domain/model"
)

// Store backends.
const (
	BackendGitHub = "github"
	BackendSQLite = "sqlite"
)

// Notifier kinds.
const (
	NotifierEmailJS = "emailjs"
	NotifierLog     = "log"
)

// EmailJS holds the EmailJS account identifiers used for reset-code delivery.
type EmailJS struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string
}

// Complete reports whether the ids needed to send a message are all set.
func (e EmailJS) Complete() bool {
	return e.ServiceID != "" && e.TemplateID != "" && e.PublicKey != ""
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string

	StoreBackend string
	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	NotesPath    string

	// SecretKey is the 32-byte AES-256 key for the credential store, or nil
	// when NOTEVAULT_SECRET_KEY is unset.
	SecretKey []byte

	Security     model.SecurityPolicy
	EncryptNotes bool

	Notifier      string
	RecoveryEmail string
	EmailJS       EmailJS

	LogLevel  slog.Level
	LogFormat string
}

// HasGitHubCredentials returns true when a token and a target repository are
// all configured through the environment.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != "" && c.HasGitHubRepository()
}

// HasGitHubRepository returns true when owner and repository are set. A token
// may still be supplied later through the API.
func (c *Config) HasGitHubRepository() bool {
	return c.GitHubOwner != "" && c.GitHubRepo != ""
}

// Load reads an optional .env file from the working directory, then reads
// configuration from NOTEVAULT_* environment variables and returns a
// validated Config. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return loadEnv()
}

func loadEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envOr("NOTEVAULT_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:        envOr("NOTEVAULT_DB_PATH", "notevault.db"),
		GitHubToken:   os.Getenv("NOTEVAULT_GITHUB_TOKEN"),
		GitHubOwner:   os.Getenv("NOTEVAULT_GITHUB_OWNER"),
		GitHubRepo:    os.Getenv("NOTEVAULT_GITHUB_REPO"),
		GitHubBranch:  envOr("NOTEVAULT_GITHUB_BRANCH", "main"),
		NotesPath:     envOr("NOTEVAULT_NOTES_PATH", "data/notes.json"),
		RecoveryEmail: os.Getenv("NOTEVAULT_RECOVERY_EMAIL"),
		EmailJS: EmailJS{
			ServiceID:  os.Getenv("NOTEVAULT_EMAILJS_SERVICE_ID"),
			TemplateID: os.Getenv("NOTEVAULT_EMAILJS_TEMPLATE_ID"),
			PublicKey:  os.Getenv("NOTEVAULT_EMAILJS_PUBLIC_KEY"),
			PrivateKey: os.Getenv("NOTEVAULT_EMAILJS_PRIVATE_KEY"),
		},
		LogFormat: strings.ToLower(envOr("NOTEVAULT_LOG_FORMAT", "text")),
	}

	var err error
	if cfg.SecretKey, err = parseSecretKey(os.Getenv("NOTEVAULT_SECRET_KEY")); err != nil {
		return nil, err
	}

	policy := model.DefaultSecurityPolicy()
	if policy.MaxAttempts, err = envPositiveInt("NOTEVAULT_MAX_ATTEMPTS", policy.MaxAttempts); err != nil {
		return nil, err
	}
	lockoutSeconds, err := envPositiveInt("NOTEVAULT_LOCKOUT_SECONDS", int(policy.LockoutDuration/time.Second))
	if err != nil {
		return nil, err
	}
	policy.LockoutDuration = time.Duration(lockoutSeconds) * time.Second
	if policy.PasswordLength, err = envPositiveInt("NOTEVAULT_PASSWORD_LENGTH", policy.PasswordLength); err != nil {
		return nil, err
	}
	if policy.KDFIterations, err = envPositiveInt("NOTEVAULT_KDF_ITERATIONS", policy.KDFIterations); err != nil {
		return nil, err
	}
	debounceMS, err := envPositiveInt("NOTEVAULT_AUTOSAVE_DEBOUNCE_MS", int(policy.AutosaveDebounce/time.Millisecond))
	if err != nil {
		return nil, err
	}
	policy.AutosaveDebounce = time.Duration(debounceMS) * time.Millisecond
	cfg.Security = policy

	if v, ok := os.LookupEnv("NOTEVAULT_ENCRYPT_NOTES"); ok && v != "" {
		cfg.EncryptNotes, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("NOTEVAULT_ENCRYPT_NOTES has invalid boolean %q: %w", v, err)
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("NOTEVAULT_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("NOTEVAULT_LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("NOTEVAULT_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	cfg.StoreBackend = strings.ToLower(os.Getenv("NOTEVAULT_STORE_BACKEND"))
	switch cfg.StoreBackend {
	case "":
		cfg.StoreBackend = BackendSQLite
		if cfg.GitHubToken != "" {
			cfg.StoreBackend = BackendGitHub
		}
	case BackendGitHub, BackendSQLite:
	default:
		return nil, fmt.Errorf("NOTEVAULT_STORE_BACKEND must be github or sqlite, got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == BackendGitHub && !cfg.HasGitHubRepository() {
		return nil, errors.New("github backend requires NOTEVAULT_GITHUB_OWNER and NOTEVAULT_GITHUB_REPO")
	}

	cfg.Notifier = strings.ToLower(os.Getenv("NOTEVAULT_NOTIFIER"))
	switch cfg.Notifier {
	case "":
		cfg.Notifier = NotifierLog
		if cfg.EmailJS.Complete() {
			cfg.Notifier = NotifierEmailJS
		}
	case NotifierLog:
	case NotifierEmailJS:
		if !cfg.EmailJS.Complete() {
			return nil, errors.New("emailjs notifier requires NOTEVAULT_EMAILJS_SERVICE_ID, NOTEVAULT_EMAILJS_TEMPLATE_ID and NOTEVAULT_EMAILJS_PUBLIC_KEY")
		}
	default:
		return nil, fmt.Errorf("NOTEVAULT_NOTIFIER must be emailjs or log, got %q", cfg.Notifier)
	}
	if cfg.Notifier == NotifierEmailJS && cfg.RecoveryEmail == "" {
		return nil, errors.New("emailjs notifier requires NOTEVAULT_RECOVERY_EMAIL")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envPositiveInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

// parseSecretKey decodes a 64-character hex string into a 32-byte key.
// An empty value disables credential storage.
func parseSecretKey(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("NOTEVAULT_SECRET_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("NOTEVAULT_SECRET_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
