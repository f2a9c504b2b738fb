package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/logger"
)

const defaultBackendURL = "http://localhost:8080"

// SecretsDir - каталог Docker secrets. Переменная для тестов.
var SecretsDir = "/run/secrets"

// Config хранит конфигурацию консоли.
type Config struct {
	AppEnv          string `env:"APP_ENV" env-default:"development"`
	Port            string `env:"CONSOLE_PORT" env-default:"3000"`
	PublicShareHost string `env:"PUBLIC_SHARE_HOST" env-default:"GiveVoice.to"`
	Logger          logger.Config
	Backend         BackendConfig
	Auth            AuthConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	RabbitMQ        RabbitMQConfig
	VoiceLab        VoiceLabConfig

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	TokenizerEncoding  string   `env:"TOKENIZER_ENCODING" env-default:"cl100k_base"`
}

// BackendConfig - API генерации.
type BackendConfig struct {
	URL       string        `env:"PATTERN_API_URL"`
	LegacyURL string        `env:"VITE_API_URL"`
	Timeout   time.Duration `env:"HTTP_CLIENT_TIMEOUT" env-default:"30s"`
}

// AuthConfig - вход в админку. Пустой PasswordHash отключает проверку.
type AuthConfig struct {
	Username        string        `env:"ADMIN_USERNAME" env-default:"admin"`
	PasswordHash    string        `env:"ADMIN_PASSWORD_HASH"`
	SessionSecret   string        `env:"SESSION_SECRET"`
	SessionTTL      time.Duration `env:"SESSION_TTL" env-default:"12h"`
	LoginRateLimit  uint          `env:"LOGIN_RATE_LIMIT" env-default:"5"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" env-default:"1m"`
}

// DatabaseConfig - архив запусков. Пустой URL отключает архив.
type DatabaseConfig struct {
	URL         string        `env:"DATABASE_URL"`
	MaxConns    int           `env:"DB_MAX_CONNECTIONS" env-default:"10"`
	IdleTimeout time.Duration `env:"DB_MAX_IDLE" env-default:"5m"`
}

// RedisConfig - кеш ответов бэкенда. Пустой Addr отключает кеш.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string        `env:"REDIS_KEY_PREFIX" env-default:"console:"`
	CacheTTL  time.Duration `env:"CACHE_TTL" env-default:"60s"`
}

// RabbitMQConfig - публикация событий консоли. Пустой URL отключает публикацию.
type RabbitMQConfig struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" env-default:"console_events"`
}

// VoiceLabConfig - пакетные запуски.
type VoiceLabConfig struct {
	WordTimeout time.Duration `env:"GENERATION_WORD_TIMEOUT" env-default:"0s"`
	KeepRuns    int           `env:"VOICE_LAB_KEEP_RUNS" env-default:"50"`
}

// Load загружает конфигурацию из .env, переменных окружения и Docker secrets.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	// секреты из файлов имеют приоритет над переменными окружения
	for name, dst := range map[string]*string{
		"admin_password_hash": &cfg.Auth.PasswordHash,
		"session_secret":      &cfg.Auth.SessionSecret,
		"redis_password":      &cfg.Redis.Password,
	} {
		if err := loadSecret(name, dst); err != nil {
			return nil, err
		}
	}
	var dbPassword string
	if err := loadSecret("db_password", &dbPassword); err != nil {
		return nil, err
	}
	if dbPassword != "" && cfg.Database.URL != "" {
		dsn, err := withPassword(cfg.Database.URL, dbPassword)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		cfg.Database.URL = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	if c.Auth.PasswordHash != "" && c.Auth.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required when ADMIN_PASSWORD_HASH is set")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.VoiceLab.WordTimeout < 0 {
		return errors.New("GENERATION_WORD_TIMEOUT must not be negative")
	}
	if c.VoiceLab.KeepRuns <= 0 {
		c.VoiceLab.KeepRuns = 50
	}
	return nil
}

// BackendURL - PATTERN_API_URL, затем VITE_API_URL, затем localhost.
func (c *Config) BackendURL() string {
	for _, u := range []string{c.Backend.URL, c.Backend.LegacyURL} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return defaultBackendURL
}

// AuthEnabled сообщает, защищена ли админка паролем.
func (c *Config) AuthEnabled() bool {
	return c.Auth.PasswordHash != ""
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// LogSummary пишет загруженную конфигурацию без секретов.
func (c *Config) LogSummary(l *zap.Logger) {
	l.Info("Console configuration loaded",
		zap.String("env", c.AppEnv),
		zap.String("port", c.Port),
		zap.String("logLevel", c.Logger.Level),
		zap.String("backendURL", c.BackendURL()),
		zap.Duration("clientTimeout", c.Backend.Timeout),
		zap.Duration("wordTimeout", c.VoiceLab.WordTimeout),
		zap.Bool("authEnabled", c.AuthEnabled()),
		zap.Bool("archiveEnabled", c.Database.URL != ""),
		zap.Bool("cacheEnabled", c.Redis.Addr != ""),
		zap.Bool("eventsEnabled", c.RabbitMQ.URL != ""),
		zap.Strings("corsOrigins", c.CORSAllowedOrigins),
	)
}

// ReadSecret читает Docker secret из SecretsDir.
func ReadSecret(name string) (string, error) {
	path := filepath.Join(SecretsDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// loadSecret перезаписывает dst значением секрета; отсутствующий файл не ошибка.
func loadSecret(name string, dst *string) error {
	secret, err := ReadSecret(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	*dst = secret
	return nil
}

// withPassword подставляет пароль в DSN вида postgres://user@host/db.
func withPassword(dsn, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}
