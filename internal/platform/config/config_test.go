package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, BusNone, cfg.EventBus)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 10000, cfg.MaxWebSocketConnections)
	assert.Equal(t, 100, cfg.MaxConnectionsPerIP)
	assert.InDelta(t, 10.0, cfg.ConnectionRatePerIP, 0.001)
	assert.Equal(t, 20, cfg.ConnectionBurst)
	assert.InDelta(t, 20.0, cfg.VoteRatePerSecond, 0.001)
	assert.Equal(t, 40, cfg.VoteBurst)
	assert.False(t, cfg.RequireVoterID)
	assert.Equal(t, 30*time.Second, cfg.PollCacheTTL)
	assert.Equal(t, int64(10000), cfg.PollCacheMaxItems)
	assert.Equal(t, time.Second, cfg.ExpiryCheckInterval)
	assert.True(t, cfg.CacheEnabled())
	assert.True(t, cfg.IsDevelopment())
	assert.Empty(t, cfg.Origins())
}

func TestOrigins(t *testing.T) {
	cfg := Config{AllowedOrigins: " https://polls.example.com/, ,http://localhost:3000 "}
	assert.Equal(t, []string{"https://polls.example.com", "http://localhost:3000"}, cfg.Origins())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/polly")
	t.Setenv("EVENT_BUS", "nats")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("REQUIRE_VOTER_ID", "true")
	t.Setenv("POLL_CACHE_TTL", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, BusNATS, cfg.EventBus)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.True(t, cfg.RequireVoterID)
	assert.False(t, cfg.CacheEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			env:     map[string]string{"STORE_BACKEND": "mongo"},
			wantErr: `STORE_BACKEND must be one of memory, redis, postgres (got "mongo")`,
		},
		{
			name:    "unknown bus",
			env:     map[string]string{"EVENT_BUS": "kafka"},
			wantErr: `EVENT_BUS must be one of none, redis, nats (got "kafka")`,
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"STORE_BACKEND": "postgres"},
			wantErr: "DATABASE_URL is required when STORE_BACKEND=postgres",
		},
		{
			name:    "redis store without url",
			env:     map[string]string{"STORE_BACKEND": "redis"},
			wantErr: "REDIS_URL is required when STORE_BACKEND=redis",
		},
		{
			name:    "redis bus without url",
			env:     map[string]string{"EVENT_BUS": "redis"},
			wantErr: "REDIS_URL is required when EVENT_BUS=redis",
		},
		{
			name:    "nats bus without url",
			env:     map[string]string{"EVENT_BUS": "nats"},
			wantErr: "NATS_URL is required when EVENT_BUS=nats",
		},
		{
			name:    "zero store timeout",
			env:     map[string]string{"STORE_TIMEOUT": "0s"},
			wantErr: "STORE_TIMEOUT must be positive",
		},
		{
			name:    "zero connections",
			env:     map[string]string{"MAX_WEBSOCKET_CONNECTIONS": "0"},
			wantErr: "MAX_WEBSOCKET_CONNECTIONS must be at least 1",
		},
		{
			name:    "negative cache ttl",
			env:     map[string]string{"POLL_CACHE_TTL": "-1s"},
			wantErr: "POLL_CACHE_TTL must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_MalformedDuration(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load environment variables")
}
