// Command pollseed creates the polls listed in a YAML file in a durable vote
// store. Polls that already exist are skipped. With -bus, running servers are
// told about the new polls right away.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	natsbus "github.com/satoshiwasHere/alx-polly/internal/adapter/nats"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/postgres"
	"github.com/satoshiwasHere/alx-polly/internal/adapter/redis"
	"github.com/satoshiwasHere/alx-polly/internal/app"
	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/platform/config"
	"github.com/satoshiwasHere/alx-polly/internal/platform/logging"
	"github.com/satoshiwasHere/alx-polly/internal/seed"
)

const runTimeout = 2 * time.Minute

type options struct {
	file        string
	store       string
	redisURL    string
	databaseURL string
	bus         string
	natsURL     string
	dryRun      bool
	verbose     bool
}

// discardPublisher stands in for the hub; this process has no websocket
// clients.
type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.VoteEvent) {}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", os.Getenv("SEED_FILE"), "YAML seed file (or set SEED_FILE env)")
	flag.StringVar(&opts.store, "store", envOr("STORE_BACKEND", config.BackendRedis), "Vote store: redis or postgres (or set STORE_BACKEND env)")
	flag.StringVar(&opts.redisURL, "redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
	flag.StringVar(&opts.databaseURL, "database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
	flag.StringVar(&opts.bus, "bus", envOr("EVENT_BUS", config.BusNone), "Event bus to announce new polls on: none, redis or nats")
	flag.StringVar(&opts.natsURL, "nats", os.Getenv("NATS_URL"), "NATS URL (or set NATS_URL env)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Validate the file without writing anything")
	flag.BoolVar(&opts.verbose, "verbose", false, "Verbose logging")
	flag.Parse()

	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	if opts.file == "" {
		log.Fatal("Seed file required (--file or SEED_FILE env)")
	}

	if err := run(opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}

func run(opts options) error {
	clock := clockwork.NewRealClock()

	f, err := seed.LoadFile(opts.file)
	if err != nil {
		return err
	}
	polls := f.Polls(clock.Now())

	if opts.dryRun {
		for _, p := range polls {
			if err := p.Validate(); err != nil {
				return err
			}
			slog.Info("Would seed poll", "poll_id", p.ID, "title", p.Title, "options", len(p.Options))
		}
		slog.Info("Dry run complete", "polls", len(polls))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var rdb *goredis.Client
	if opts.store == config.BackendRedis || opts.bus == config.BusRedis {
		if opts.redisURL == "" {
			return fmt.Errorf("redis URL required (--redis or REDIS_URL env)")
		}
		rdb, err = redis.NewClient(ctx, opts.redisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		slog.Info("Connected to Redis", "url", sanitizeURL(opts.redisURL))
	}

	var store domain.VoteStore
	switch opts.store {
	case config.BackendRedis:
		store = redis.NewVoteStore(rdb, clock)
	case config.BackendPostgres:
		if opts.databaseURL == "" {
			return fmt.Errorf("database URL required (--database or DATABASE_URL env)")
		}
		pool, err := postgres.ConnectWithRetry(ctx, opts.databaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			return err
		}
		slog.Info("Connected to PostgreSQL", "url", sanitizeURL(opts.databaseURL))
		store = postgres.NewVoteStore(pool, clock)
	default:
		return fmt.Errorf("unsupported store %q: pollseed writes to redis or postgres", opts.store)
	}

	var relay *app.Relay
	switch opts.bus {
	case config.BusNone:
	case config.BusRedis:
		relay = app.NewRelay(redis.NewEventBus(rdb, redis.DefaultEventChannel))
	case config.BusNATS:
		nb, err := natsbus.Connect(ctx, opts.natsURL, natsbus.DefaultSubject)
		if err != nil {
			return err
		}
		defer func() { _ = nb.Close() }()
		relay = app.NewRelay(nb)
	default:
		return fmt.Errorf("unsupported bus %q", opts.bus)
	}

	svc := app.NewService(store, discardPublisher{}, relay, nil, nil, clock, 10*time.Second)

	start := clock.Now()
	res, err := seed.Apply(ctx, svc, polls)
	if err != nil {
		return err
	}

	slog.Info("Seed summary",
		"created", res.Created,
		"skipped", res.Skipped,
		"duration_ms", clock.Since(start).Milliseconds())
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sanitizeURL drops credentials before logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
