// Package httpserver exposes the poll service over HTTP (echo) and streams
// live tallies to websocket clients through the broadcast hub.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/satoshiwasHere/alx-polly/internal/broadcast"
	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/platform/config"
)

type pollService interface {
	CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error)
	CreatePoll(ctx context.Context, poll domain.Poll, createdBy string) (domain.Poll, error)
	GetPoll(ctx context.Context, pollID string) (domain.Poll, error)
	ListPolls(ctx context.Context) ([]domain.Poll, error)
	SetActive(ctx context.Context, pollID string, active bool, userID string) (domain.Poll, error)
	DeletePoll(ctx context.Context, pollID string, userID string) error
	Snapshots(ctx context.Context, pollIDs []string) ([]domain.Poll, error)
}

type connectionHub interface {
	Register(conn broadcast.Conn, pollIDs []string) (uuid.UUID, error)
	Unregister(id uuid.UUID)
	Send(id uuid.UUID, event domain.VoteEvent)
	ClientCount() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app        pollService
	hub        connectionHub
	limits     *ConnectionLimits
	voteLimits middleware.RateLimiterStore
	upgrader   *websocket.Upgrader

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the router. voteLimits may be nil, in which case votes are
// rate limited per process.
func NewServer(cfg *config.Config, clock clockwork.Clock, app pollService, hub connectionHub, voteLimits middleware.RateLimiterStore, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		app:          app,
		hub:          hub,
		limits:       newConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerIP, cfg.ConnectionBurst),
		voteLimits:   voteLimits,
		upgrader:     newUpgrader(newCheckOrigin(cfg.Origins(), cfg.IsDevelopment())),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	if srv.voteLimits == nil {
		srv.voteLimits = newMemoryRateLimiterStore(cfg.VoteRatePerSecond, cfg.VoteBurst)
	}

	srv.registerRoutes()
	return srv
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}
