package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/satoshiwasHere/alx-polly/internal/adapter/breaker"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/httpserver"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/memory"
	natsbus "github.com/satoshiwasHere/alx-polly/internal/adapter/nats"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/postgres"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/redis"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/ristretto"
	"github.com/satoshiwasHere/alx-polly/internal/app"
	"github.com/satoshiwasHere/alx-polly/internal/broadcast"
	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
	"github.com/satoshiwasHere/alx-polly/internal/platform/config"
	"github.com/satoshiwasHere/alx-polly/internal/platform/logging"
	"github.com/satoshiwasHere/alx-polly/internal/platform/version"
	"github.com/satoshiwasHere/alx-polly/internal/seed"
)

const startupTimeout = 30 * time.Second

// backends holds every external connection so shutdown can close them in one
// place.
type backends struct {
	store        domain.VoteStore
	bus          domain.EventBus
	voteLimits   middleware.RateLimiterStore
	healthChecks []httpserver.HealthCheck
	closers      []func()
}

func (b *backends) onClose(fn func()) {
	b.closers = append(b.closers, fn)
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func setupBackends(ctx context.Context, cfg *config.Config, clock clockwork.Clock) *backends {
	b := &backends{}

	var rdb *goredis.Client
	if cfg.StoreBackend == config.BackendRedis || cfg.EventBus == config.BusRedis {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			fatal("Failed to connect to Redis", err)
		}
		rdb = client
		b.onClose(func() { _ = rdb.Close() })
		b.voteLimits = redis.NewVoteRateLimiter(rdb, clock, cfg.VoteRatePerSecond, cfg.VoteBurst)
		b.healthChecks = append(b.healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		b.store = redis.NewVoteStore(rdb, clock)
	case config.BackendPostgres:
		pool, err := postgres.ConnectWithRetry(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("Failed to connect to database", err)
		}
		b.onClose(pool.Close)
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			fatal("Failed to run migrations", err)
		}
		b.store = breaker.NewVoteStore(postgres.NewVoteStore(pool, clock), breaker.DefaultSettings)
		b.healthChecks = append(b.healthChecks, httpserver.HealthCheck{Name: "postgres", Check: postgres.HealthCheck(pool)})
	default:
		b.store = memory.NewVoteStore(clock)
	}

	switch cfg.EventBus {
	case config.BusRedis:
		b.bus = redis.NewEventBus(rdb, redis.DefaultEventChannel)
	case config.BusNATS:
		nb, err := natsbus.Connect(ctx, cfg.NATSURL, natsbus.DefaultSubject)
		if err != nil {
			fatal("Failed to connect to NATS", err)
		}
		b.onClose(func() { _ = nb.Close() })
		b.bus = nb
		b.healthChecks = append(b.healthChecks, httpserver.HealthCheck{Name: "nats", Check: nb.Ping})
	}

	slog.Info("Backends ready", "store", cfg.StoreBackend, "event_bus", cfg.EventBus)
	return b
}

func setupCache(cfg *config.Config) domain.PollCache {
	if !cfg.CacheEnabled() {
		return nil
	}
	cache, err := ristretto.NewPollCache(cfg.PollCacheMaxItems, cfg.PollCacheTTL)
	if err != nil {
		fatal("Failed to create poll cache", err)
	}
	return cache
}

func runSeed(ctx context.Context, path string, svc *app.Service, clock clockwork.Clock) {
	f, err := seed.LoadFile(path)
	if err != nil {
		fatal("Failed to load seed file", err)
	}
	res, err := seed.Apply(ctx, svc, f.Polls(clock.Now()))
	if err != nil {
		fatal("Failed to seed polls", err)
	}
	slog.Info("Seed applied", "file", path, "created", res.Created, "skipped", res.Skipped)
}

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub, stopWorkers context.CancelFunc, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopWorkers()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.String())

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	b := setupBackends(startupCtx, cfg, clock)
	defer b.close()

	cache := setupCache(cfg)
	if c, ok := cache.(*ristretto.PollCache); ok {
		defer c.Close()
	}

	hub := broadcast.NewHub(clock, cfg.MaxWebSocketConnections)
	expiry := app.NewExpiryWatcher(clock, cfg.ExpiryCheckInterval)

	var relay *app.Relay
	if b.bus != nil {
		relay = app.NewRelay(b.bus)
	}

	svc := app.NewService(b.store, hub, relay, cache, expiry, clock, cfg.StoreTimeout)

	if cfg.SeedFile != "" {
		runSeed(startupCtx, cfg.SeedFile, svc, clock)
	}

	// Loads every open deadline into the expiry watcher.
	if _, err := svc.ListPolls(startupCtx); err != nil {
		fatal("Failed to load polls", err)
	}
	cancelStartup()

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if relay != nil {
		stopRelay, err := relay.Start(workersCtx, svc.ApplyRemote)
		if err != nil {
			fatal("Failed to subscribe to event bus", err)
		}
		defer stopRelay()
	}
	go expiry.Run(workersCtx, svc.PublishExpired)

	srv := httpserver.NewServer(cfg, clock, svc, hub, b.voteLimits, b.healthChecks)

	done := runGracefulShutdown(srv, hub, stopWorkers, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
