package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/satoshiwasHere/alx-polly/internal/broadcast"
	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
	apperrors "github.com/satoshiwasHere/alx-polly/internal/platform/errors"
)

const (
	maxSubscribedPolls = 50
	maxInboundMessage  = 512
)

func newUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// handleWebSocket registers the connection with the hub, then sends the
// current state of every requested poll. Registering first means no update
// is lost in between; the hub's per-poll ordering drops a snapshot that is
// older than an update already written.
func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()

	pollIDs, err := subscribedPolls(c.QueryParams()["poll"])
	if err != nil {
		return err
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		slog.WarnContext(ctx, "Websocket connection rejected", "ip", ip, "reason", reason)
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		return echo.NewHTTPError(status, "too many connections")
	}
	s.recordCapacity()
	defer func() {
		s.limits.Release(ip)
		s.recordCapacity()
	}()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the client.
		metrics.WebSocketConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		slog.DebugContext(ctx, "Websocket upgrade failed", "error", err)
		return nil
	}
	conn.SetReadLimit(maxInboundMessage)

	id, err := s.hub.Register(conn, pollIDs)
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, broadcast.ErrHubFull) {
			metrics.WebSocketConnectionsRejected.WithLabelValues("hub_full").Inc()
		} else {
			_ = conn.Close()
		}
		slog.WarnContext(ctx, "Websocket registration failed", "error", err)
		return nil
	}
	defer s.hub.Unregister(id)

	metrics.WebSocketConnectionsTotal.WithLabelValues("accepted").Inc()
	start := s.clock.Now()
	defer func() {
		metrics.WebSocketConnectionDuration.Observe(s.clock.Since(start).Seconds())
	}()

	snapshots, err := s.app.Snapshots(ctx, pollIDs)
	if err != nil {
		slog.WarnContext(ctx, "Fetch-on-connect failed, client waits for live updates", "client_id", id.String(), "error", err)
	}
	for _, p := range snapshots {
		s.hub.Send(id, domain.NewSnapshotEvent(p))
	}

	// Clients only send control frames; the read loop serves pongs and
	// notices disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	return nil
}

func subscribedPolls(raw []string) ([]string, error) {
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, id := range strings.Split(r, ",") {
			id = strings.TrimSpace(id)
			if id == "" || slices.Contains(ids, id) {
				continue
			}
			if len(id) > maxPollIDLen {
				return nil, apperrors.ValidationError("poll id too long").WithField("max_length", maxPollIDLen)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) > maxSubscribedPolls {
		return nil, apperrors.ValidationError("too many polls requested").WithField("max_polls", maxSubscribedPolls)
	}
	return ids, nil
}

func (s *Server) recordCapacity() {
	metrics.WebSocketConnectionCapacity.Set(s.limits.Global().CapacityPct())
	metrics.WebSocketUniqueIPs.Set(float64(s.limits.PerIP().UniqueIPs()))
}
