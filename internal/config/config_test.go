package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every NOTEVAULT_ env var that Load() reads.
var allConfigKeys = []string{
	"NOTEVAULT_LISTEN_ADDR",
	"NOTEVAULT_DB_PATH",
	"NOTEVAULT_STORE_BACKEND",
	"NOTEVAULT_GITHUB_TOKEN",
	"NOTEVAULT_GITHUB_OWNER",
	"NOTEVAULT_GITHUB_REPO",
	"NOTEVAULT_GITHUB_BRANCH",
	"NOTEVAULT_NOTES_PATH",
	"NOTEVAULT_SECRET_KEY",
	"NOTEVAULT_MAX_ATTEMPTS",
	"NOTEVAULT_LOCKOUT_SECONDS",
	"NOTEVAULT_PASSWORD_LENGTH",
	"NOTEVAULT_KDF_ITERATIONS",
	"NOTEVAULT_AUTOSAVE_DEBOUNCE_MS",
	"NOTEVAULT_ENCRYPT_NOTES",
	"NOTEVAULT_NOTIFIER",
	"NOTEVAULT_RECOVERY_EMAIL",
	"NOTEVAULT_EMAILJS_SERVICE_ID",
	"NOTEVAULT_EMAILJS_TEMPLATE_ID",
	"NOTEVAULT_EMAILJS_PUBLIC_KEY",
	"NOTEVAULT_EMAILJS_PRIVATE_KEY",
	"NOTEVAULT_LOG_LEVEL",
	"NOTEVAULT_LOG_FORMAT",
}

// isolateConfigEnv saves and unsets all NOTEVAULT_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "notevault.db", cfg.DBPath)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "main", cfg.GitHubBranch)
	assert.Equal(t, "data/notes.json", cfg.NotesPath)
	assert.Nil(t, cfg.SecretKey)
	assert.Equal(t, 3, cfg.Security.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Security.LockoutDuration)
	assert.Equal(t, 6, cfg.Security.PasswordLength)
	assert.Equal(t, 100000, cfg.Security.KDFIterations)
	assert.Equal(t, 2*time.Second, cfg.Security.AutosaveDebounce)
	assert.False(t, cfg.EncryptNotes)
	assert.Equal(t, NotifierLog, cfg.Notifier)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.HasGitHubCredentials())
}

func TestLoad_GitHubBackendFromToken(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_GITHUB_TOKEN", "ghp_test123")
	t.Setenv("NOTEVAULT_GITHUB_OWNER", "alice")
	t.Setenv("NOTEVAULT_GITHUB_REPO", "notes")
	t.Setenv("NOTEVAULT_GITHUB_BRANCH", "vault")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, BackendGitHub, cfg.StoreBackend)
	assert.Equal(t, "vault", cfg.GitHubBranch)
	assert.True(t, cfg.HasGitHubCredentials())
}

// TestLoad_GitHubBackendWithoutToken verifies that an explicit github backend
// starts without a token; it can be supplied later through the API.
func TestLoad_GitHubBackendWithoutToken(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_STORE_BACKEND", "github")
	t.Setenv("NOTEVAULT_GITHUB_OWNER", "alice")
	t.Setenv("NOTEVAULT_GITHUB_REPO", "notes")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, BackendGitHub, cfg.StoreBackend)
	assert.False(t, cfg.HasGitHubCredentials())
	assert.True(t, cfg.HasGitHubRepository())
}

func TestLoad_GitHubBackendRequiresRepository(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_GITHUB_TOKEN", "ghp_test123")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_GITHUB_OWNER")
}

func TestLoad_InvalidBackend(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_STORE_BACKEND", "s3")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_STORE_BACKEND")
}

func TestLoad_SecurityOverrides(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_MAX_ATTEMPTS", "5")
	t.Setenv("NOTEVAULT_LOCKOUT_SECONDS", "90")
	t.Setenv("NOTEVAULT_PASSWORD_LENGTH", "8")
	t.Setenv("NOTEVAULT_KDF_ITERATIONS", "1000")
	t.Setenv("NOTEVAULT_AUTOSAVE_DEBOUNCE_MS", "250")
	t.Setenv("NOTEVAULT_ENCRYPT_NOTES", "true")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Security.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Security.LockoutDuration)
	assert.Equal(t, 8, cfg.Security.PasswordLength)
	assert.Equal(t, 1000, cfg.Security.KDFIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Security.AutosaveDebounce)
	assert.True(t, cfg.EncryptNotes)
}

func TestLoad_InvalidIntegers(t *testing.T) {
	for _, tc := range []struct{ key, value string }{
		{"NOTEVAULT_MAX_ATTEMPTS", "three"},
		{"NOTEVAULT_MAX_ATTEMPTS", "0"},
		{"NOTEVAULT_LOCKOUT_SECONDS", "-1"},
		{"NOTEVAULT_PASSWORD_LENGTH", "6.5"},
	} {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tc.key, tc.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoad_InvalidBool(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_ENCRYPT_NOTES", "sometimes")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_ENCRYPT_NOTES")
}

func TestLoad_Logging(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_LOG_LEVEL", "debug")
	t.Setenv("NOTEVAULT_LOG_FORMAT", "JSON")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_LOG_FORMAT", "xml")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_LOG_FORMAT")
}

func TestLoad_EmailJSNotifierInferred(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_EMAILJS_SERVICE_ID", "svc")
	t.Setenv("NOTEVAULT_EMAILJS_TEMPLATE_ID", "tpl")
	t.Setenv("NOTEVAULT_EMAILJS_PUBLIC_KEY", "pub")
	t.Setenv("NOTEVAULT_RECOVERY_EMAIL", "me@example.com")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, NotifierEmailJS, cfg.Notifier)
	assert.Equal(t, "me@example.com", cfg.RecoveryEmail)
}

func TestLoad_EmailJSNotifierIncomplete(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_NOTIFIER", "emailjs")
	t.Setenv("NOTEVAULT_EMAILJS_SERVICE_ID", "svc")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_EMAILJS_TEMPLATE_ID")
}

func TestLoad_EmailJSNotifierRequiresRecoveryEmail(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_EMAILJS_SERVICE_ID", "svc")
	t.Setenv("NOTEVAULT_EMAILJS_TEMPLATE_ID", "tpl")
	t.Setenv("NOTEVAULT_EMAILJS_PUBLIC_KEY", "pub")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_RECOVERY_EMAIL")
}

func TestLoad_SecretKey_Valid(t *testing.T) {
	isolateConfigEnv(t)
	// 64 hex chars = 32 bytes
	t.Setenv("NOTEVAULT_SECRET_KEY", "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Len(t, cfg.SecretKey, 32)
}

func TestLoad_SecretKey_TooShort(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTEVAULT_SECRET_KEY", "deadbeef")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_SECRET_KEY")
}

func TestLoad_SecretKey_NotHex(t *testing.T) {
	isolateConfigEnv(t)
	// 64 chars but not valid hex
	t.Setenv("NOTEVAULT_SECRET_KEY", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEVAULT_SECRET_KEY")
}

func TestLoad_DotEnv(t *testing.T) {
	isolateConfigEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/.env", []byte("NOTEVAULT_DB_PATH=/var/lib/notevault.db\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/notevault.db", cfg.DBPath)
}
