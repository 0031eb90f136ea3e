package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"3001"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	TwitchClientID     string  `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string  `env:"TWITCH_CLIENT_SECRET"`
	TwitchUsePKCE      bool    `env:"TWITCH_USE_PKCE" default:"false"`
	TwitchRedirectURI  string  `env:"TWITCH_REDIRECT_URI" default:"http://localhost:3001/auth/callback"`
	TwitchAuthURL      string  `env:"TWITCH_AUTH_URL" default:"https://id.twitch.tv/oauth2/authorize"`
	TwitchTokenURL     string  `env:"TWITCH_TOKEN_URL" default:"https://id.twitch.tv/oauth2/token"`
	TwitchHelixURL     string  `env:"TWITCH_HELIX_URL" default:"https://api.twitch.tv/helix"`
	TwitchRateLimit    float64 `env:"TWITCH_RATE_LIMIT" default:"10"`

	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	AllowedOriginsRaw  string `env:"ALLOWED_ORIGINS" default:"http://localhost:1420,tauri://localhost"`
	EnvFilePath        string `env:"ENV_FILE_PATH" default:".env"`

	StatsTimezone   string        `env:"STATS_TIMEZONE" default:"Local"`
	StatsCacheTTL   time.Duration `env:"STATS_CACHE_TTL" default:"5m"`
	LedgerQueueSize int           `env:"LEDGER_QUEUE_SIZE" default:"16"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

const defaultEnvFile = ".env"

// Load reads the env file named by ENV_FILE_PATH (".env" when unset) and
// then the process environment, which wins over the file. The setup service
// writes to the same file, so saved credentials are picked up on restart.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Info("No env file found, using environment variables", "path", envFile)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllowedOrigins splits ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for origin := range strings.SplitSeq(c.AllowedOriginsRaw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// StatsLocation resolves STATS_TIMEZONE; validate has already checked it.
func (c *Config) StatsLocation() *time.Location {
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TwitchConfigured reports whether the Twitch app credentials are present.
// Without them the server boots in setup mode: the setup API works, login,
// followed streams and the poller do not.
func (c *Config) TwitchConfigured() bool {
	if strings.TrimSpace(c.TwitchClientID) == "" {
		return false
	}
	return c.TwitchUsePKCE || strings.TrimSpace(c.TwitchClientSecret) != ""
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"TWITCH_REDIRECT_URI", cfg.TwitchRedirectURI},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if _, err := time.LoadLocation(cfg.StatsTimezone); err != nil {
		return fmt.Errorf("STATS_TIMEZONE is not a known time zone: %w", err)
	}

	if cfg.LedgerQueueSize < 1 {
		return errors.New("LEDGER_QUEUE_SIZE must be at least 1")
	}
	if cfg.TwitchRateLimit <= 0 {
		return errors.New("TWITCH_RATE_LIMIT must be positive")
	}

	if cfg.IsProduction() {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
