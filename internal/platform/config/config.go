package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	BusNone  = "none"
	BusRedis = "redis"
	BusNATS  = "nats"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	StoreBackend string `env:"STORE_BACKEND" default:"memory"`
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`
	EventBus     string `env:"EVENT_BUS" default:"none"`
	NATSURL      string `env:"NATS_URL"`

	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" default:"2s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`

	// Comma separated browser origins allowed to open websockets. Empty allows any.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	VoteRatePerSecond float64 `env:"VOTE_RATE_PER_SECOND" default:"20"`
	VoteBurst         int     `env:"VOTE_BURST" default:"40"`
	RequireVoterID    bool    `env:"REQUIRE_VOTER_ID" default:"false"`

	PollCacheTTL      time.Duration `env:"POLL_CACHE_TTL" default:"30s"` // 0 disables the cache
	PollCacheMaxItems int64         `env:"POLL_CACHE_MAX_ITEMS" default:"10000"`

	ExpiryCheckInterval time.Duration `env:"EXPIRY_CHECK_INTERVAL" default:"1s"`

	SeedFile string `env:"SEED_FILE"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
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

func validate(cfg *Config) error {
	if !slices.Contains([]string{BackendMemory, BackendRedis, BackendPostgres}, cfg.StoreBackend) {
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres (got %q)", cfg.StoreBackend)
	}
	if !slices.Contains([]string{BusNone, BusRedis, BusNATS}, cfg.EventBus) {
		return fmt.Errorf("EVENT_BUS must be one of none, redis, nats (got %q)", cfg.EventBus)
	}

	if cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
	}
	if cfg.StoreBackend == BackendRedis && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required when STORE_BACKEND=redis")
	}
	if cfg.EventBus == BusRedis && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required when EVENT_BUS=redis")
	}
	if cfg.EventBus == BusNATS && cfg.NATSURL == "" {
		return errors.New("NATS_URL is required when EVENT_BUS=nats")
	}

	if cfg.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if cfg.ExpiryCheckInterval <= 0 {
		return errors.New("EXPIRY_CHECK_INTERVAL must be positive")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.MaxConnectionsPerIP < 1 {
		return errors.New("MAX_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.ConnectionRatePerIP <= 0 || cfg.VoteRatePerSecond <= 0 {
		return errors.New("CONNECTION_RATE_PER_IP and VOTE_RATE_PER_SECOND must be positive")
	}
	if cfg.PollCacheTTL < 0 {
		return errors.New("POLL_CACHE_TTL must not be negative")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins returns the parsed ALLOWED_ORIGINS list.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// CacheEnabled reports whether the poll snapshot cache should be built.
func (c *Config) CacheEnabled() bool {
	return c.PollCacheTTL > 0 && c.PollCacheMaxItems > 0
}
