package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/obslog"
)

type AppConfig struct {
	Addr string

	RedisURL string

	DefaultClockSeconds int
	EmptyGrace          time.Duration
	IdleTimeout         time.Duration
	SweepInterval       time.Duration
	DrawOfferTTL        time.Duration

	MessagesDir    string
	AllowedOrigins []string
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	ServerURL string
	Timeout   time.Duration
	// PlayerID and PlayerName are used when no flag overrides them.
	PlayerID   string
	PlayerName string
}

// Load reads an optional .env file and then the environment, falling back
// to defaults for missing or malformed values.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		Addr:                envOr("ADDR", ":8080"),
		RedisURL:            envOr("REDIS_URL", ""),
		DefaultClockSeconds: envIntOr("DEFAULT_CLOCK_SECONDS", 300),
		EmptyGrace:          envDurationOr("EMPTY_GRACE", 5*time.Minute),
		IdleTimeout:         envDurationOr("IDLE_TIMEOUT", time.Hour),
		SweepInterval:       envDurationOr("SWEEP_INTERVAL", time.Minute),
		DrawOfferTTL:        envDurationOr("DRAW_OFFER_TTL", 60*time.Second),
		MessagesDir:         envOr("MESSAGES_DIR", ""),
		AllowedOrigins:      envListOr("ALLOWED_ORIGINS", nil),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("ADDR cannot be empty")
	}
	if c.DefaultClockSeconds < 0 {
		return fmt.Errorf("DEFAULT_CLOCK_SECONDS must be >= 0, got %d", c.DefaultClockSeconds)
	}
	if c.EmptyGrace <= 0 {
		return errors.New("EMPTY_GRACE must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("IDLE_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.SweepInterval > c.EmptyGrace {
		return fmt.Errorf("SWEEP_INTERVAL (%s) must not exceed EMPTY_GRACE (%s)", c.SweepInterval, c.EmptyGrace)
	}
	if c.DrawOfferTTL < 0 {
		return errors.New("DRAW_OFFER_TTL must be >= 0")
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("REDIS_URL must use redis:// or rediss://, got %q", c.RedisURL)
	}
	return nil
}

// LoadClient reads the terminal client's settings.
func LoadClient() ClientConfig {
	_ = godotenv.Load()
	return ClientConfig{
		ServerURL: strings.TrimRight(envOr("NETCHESS_SERVER", "http://localhost:8080"), "/"),
		Timeout:   envDurationOr("NETCHESS_TIMEOUT", 5*time.Second),

		PlayerID:   envOr("NETCHESS_PLAYER", ""),
		PlayerName: envOr("NETCHESS_NAME", ""),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		obslog.L().Warn("config_invalid_value", zap.String("key", key), zap.String("value", v), zap.Int("default", def))
		return def
	}
	return n
}

// envDurationOr accepts Go durations ("90s") or bare seconds ("90").
func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		obslog.L().Warn("config_invalid_value", zap.String("key", key), zap.String("value", v), zap.Duration("default", def))
		return def
	}
	return d
}

func envListOr(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
