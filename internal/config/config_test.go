package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecrets(t *testing.T, secrets map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, value := range secrets {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o600))
	}
	prev := SecretsDir
	SecretsDir = dir
	t.Cleanup(func() { SecretsDir = prev })
}

func TestLoad_Defaults(t *testing.T) {
	withSecrets(t, nil)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.BackendURL())
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, time.Duration(0), cfg.VoiceLab.WordTimeout)
	assert.Equal(t, 50, cfg.VoiceLab.KeepRuns)
	assert.Equal(t, "GiveVoice.to", cfg.PublicShareHost)
	assert.Equal(t, "console_events", cfg.RabbitMQ.Exchange)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Env(t *testing.T) {
	withSecrets(t, nil)
	t.Setenv("VITE_API_URL", "https://legacy.example/api")
	t.Setenv("GENERATION_WORD_TIMEOUT", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://legacy.example/api", cfg.BackendURL())
	assert.Equal(t, 90*time.Second, cfg.VoiceLab.WordTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())

	t.Setenv("PATTERN_API_URL", "https://api.example")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example", cfg.BackendURL(), "PATTERN_API_URL важнее VITE_API_URL")
}

func TestLoad_SecretsOverrideEnv(t *testing.T) {
	withSecrets(t, map[string]string{
		"admin_password_hash": "$2a$10$hash",
		"session_secret":      "from-file",
		"db_password":         "p@ss word",
	})
	t.Setenv("SESSION_SECRET", "from-env")
	t.Setenv("DATABASE_URL", "postgres://console@db:5432/console?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, "from-file", cfg.Auth.SessionSecret)
	assert.Equal(t, "postgres://console:p%40ss%20word@db:5432/console?sslmode=disable", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	withSecrets(t, nil)
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$hash")
	_, err := Load()
	assert.ErrorContains(t, err, "SESSION_SECRET")

	cfg := &Config{Auth: AuthConfig{SessionTTL: time.Hour}, VoiceLab: VoiceLabConfig{WordTimeout: -time.Second}}
	assert.Error(t, cfg.Validate())
}

func TestReadSecret(t *testing.T) {
	withSecrets(t, map[string]string{"empty": "  "})

	_, err := ReadSecret("empty")
	assert.ErrorContains(t, err, "is empty")

	_, err = ReadSecret("missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
