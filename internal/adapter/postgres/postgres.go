// Package postgres implements the durable VoteStore on PostgreSQL via pgx,
// with schema migrations managed by tern.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"

	"github.com/satoshiwasHere/alx-polly/internal/platform/retry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolCfg.ConnConfig.Tracer = &MetricsTracer{}

	host, database, sslmode := describeTarget(databaseURL)
	slog.Info("Connecting to vote database", "host", host, "database", database, "sslmode", sslmode)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// ConnectWithRetry dials with the startup backoff policy; a database started
// next to the service may not accept connections yet.
func ConnectWithRetry(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.Do(ctx, policy, retry.AlwaysRetry, func(ctx context.Context) (*pgxpool.Pool, error) {
		return Connect(ctx, databaseURL)
	})
}

// describeTarget summarises where the pool points without leaking credentials.
func describeTarget(databaseURL string) (host, database, sslmode string) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown", "unknown", "unknown"
	}
	sslmode = strings.ToLower(u.Query().Get("sslmode"))
	if sslmode == "" {
		sslmode = "prefer (default)"
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), sslmode
}

const (
	// migrationLockID is a PostgreSQL advisory lock ID for coordinating migrations.
	// Value: 0x706f6c6c79 ("polly" in ASCII hex)
	migrationLockID             = 0x706f6c6c79
	migrationLockReleaseTimeout = 5 * time.Second

	schemaVersionTable = "public.schema_version"
	schemaVersionQuery = `-- name: SchemaVersion
SELECT version FROM public.schema_version`
)

// RunMigrationsWithLock applies pending migrations while holding an advisory
// lock, so instances starting together migrate once.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	release, err := migrationLock(ctx, conn.Conn(), migrationLockReleaseTimeout)
	if err != nil {
		return err
	}
	defer release()

	slog.Info("running database migrations")
	return runMigrations(ctx, conn.Conn())
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, schemaVersionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	from, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		slog.Debug("could not get current DB version (likely fresh DB)", "error", err)
		from = 0
	}
	if int(from) == len(migrator.Migrations) {
		slog.Info("Vote schema up to date", "version", from)
		return nil
	}

	migrator.OnStart = func(sequence int32, name, _, _ string) {
		slog.Info("Applying migration", "sequence", sequence, "name", name)
	}
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("Vote schema migrated", "from", from, "to", len(migrator.Migrations))
	return nil
}

// expectedSchemaVersion is the version tern reaches after every embedded
// migration has run.
func expectedSchemaVersion() (int32, error) {
	files, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}
	return int32(len(files)), nil
}

// HealthCheck reports the pool unhealthy when the database is unreachable or
// its schema lags behind the migrations this binary carries.
func HealthCheck(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		want, err := expectedSchemaVersion()
		if err != nil {
			return err
		}
		var have int32
		if err := pool.QueryRow(ctx, schemaVersionQuery).Scan(&have); err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if have < want {
			return fmt.Errorf("schema at version %d, want %d", have, want)
		}
		return nil
	}
}

func migrationLock(ctx context.Context, conn *pgx.Conn, releaseTimeout time.Duration) (release func(), err error) {
	release = func() { /* EMPTY */ }

	if _, err = conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		err = fmt.Errorf("failed to acquire migration lock: %w", err)
		return
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Error("failed to release migration lock", "error", err)
		}
	}
	return
}
