package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/satoshiwasHere/alx-polly/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck probes one backend (vote store, event bus, rate limit store).
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type readinessResponse struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks,omitempty"`
	FailedChecks []string          `json:"failed_checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.respondReadiness(c, startupProbeTimeout)
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.respondReadiness(c, readinessProbeTimeout)
}

// handleLiveness never touches a backend.
func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":            "ok",
		"uptime":            s.clock.Since(s.startTime).Seconds(),
		"websocket_clients": s.hub.ClientCount(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) respondReadiness(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	resp := s.runHealthChecks(ctx)
	status := http.StatusOK
	if len(resp.FailedChecks) > 0 {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// runHealthChecks probes every backend concurrently and reports each result.
func (s *Server) runHealthChecks(ctx context.Context) readinessResponse {
	results := make([]error, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: "ready"}
	if len(s.healthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.healthChecks))
	}
	for i, hc := range s.healthChecks {
		if err := results[i]; err != nil {
			resp.Checks[hc.Name] = err.Error()
			resp.FailedChecks = append(resp.FailedChecks, hc.Name)
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}
	if len(resp.FailedChecks) > 0 {
		resp.Status = "unhealthy"
		sort.Strings(resp.FailedChecks)
	}
	return resp
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
