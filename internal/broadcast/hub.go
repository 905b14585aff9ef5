package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 256
)

var (
	ErrHubFull    = errors.New("hub connection limit reached")
	ErrHubStopped = errors.New("hub is stopped")
)

type client struct {
	writer   *clientWriter
	interest map[string]struct{} // empty means every poll
}

func (c *client) wants(pollID string) bool {
	if len(c.interest) == 0 {
		return true
	}
	_, ok := c.interest[pollID]
	return ok
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerReply struct {
	id  uuid.UUID
	err error
}

type registerCmd struct {
	baseHubCmd
	connection Conn
	pollIDs    []string
	reply      chan registerReply
}

type unregisterCmd struct {
	baseHubCmd
	id uuid.UUID
}

type publishCmd struct {
	baseHubCmd
	msg outbound
}

type sendCmd struct {
	baseHubCmd
	id  uuid.UUID
	msg outbound
}

type countCmd struct {
	baseHubCmd
	reply chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns the set of live connections and fans poll events out to them.
// Construct one per process with NewHub; there is no package-level instance.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	clients     map[uuid.UUID]*client
	maxClients  int
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
	delivered   atomic.Int64
}

// NewHub starts the hub goroutine. maxClients bounds the registry size.
func NewHub(clock clockwork.Clock, maxClients int) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandCapacity),
		clock:       clock,
		clients:     make(map[uuid.UUID]*client),
		maxClients:  maxClients,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Register adds a connection interested in pollIDs (all polls when empty) and
// returns the handle for Unregister and Send. No earlier events are replayed.
func (h *Hub) Register(conn Conn, pollIDs []string) (uuid.UUID, error) {
	replyCh := make(chan registerReply, 1)
	if !h.submit(context.Background(), registerCmd{connection: conn, pollIDs: pollIDs, reply: replyCh}) {
		return uuid.Nil, ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r := <-replyCh:
		return r.id, r.err
	case <-h.done:
		return uuid.Nil, ErrHubStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes the connection and closes it. Unknown or already removed
// ids are ignored.
func (h *Hub) Unregister(id uuid.UUID) {
	h.submit(context.Background(), unregisterCmd{id: id})
}

// Publish delivers event to every connection interested in its poll. Delivery
// problems stay inside the hub; Publish itself never fails.
func (h *Hub) Publish(ctx context.Context, event domain.VoteEvent) {
	msg, err := encode(event)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "poll_id", event.PollID, "error", err)
		return
	}
	metrics.HubPublishesTotal.WithLabelValues(string(event.Kind)).Inc()

	if !h.submit(ctx, publishCmd{msg: msg}) {
		slog.Debug("Publish dropped", "poll_id", event.PollID, "type", event.Kind, "reason", "hub stopped or context done")
	}
}

// Send delivers event to a single connection, e.g. the snapshot a client
// gets right after connecting.
func (h *Hub) Send(id uuid.UUID, event domain.VoteEvent) {
	msg, err := encode(event)
	if err != nil {
		slog.Error("Failed to marshal direct message", "poll_id", event.PollID, "error", err)
		return
	}
	h.submit(context.Background(), sendCmd{id: id, msg: msg})
}

// ClientCount returns the number of registered connections.
// Returns -1 if the command times out.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if !h.submit(context.Background(), countCmd{reply: replyCh}) {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Delivered returns how many messages have been written to connections.
func (h *Hub) Delivered() int64 {
	return h.delivered.Load()
}

// Stop closes every connection with a close frame and ends the hub goroutine.
// Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if !h.submit(context.Background(), stopCmd{}) {
			return
		}

		timeout := h.clock.NewTimer(h.stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
			metrics.HubStopTimeoutsTotal.Inc()
		}
	})
}

func (h *Hub) submit(ctx context.Context, cmd hubCmd) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func encode(event domain.VoteEvent) (outbound, error) {
	data, err := json.Marshal(event.Envelope())
	if err != nil {
		return outbound{}, err
	}
	return outbound{
		pollID: event.PollID,
		kind:   event.Kind,
		total:  event.Poll.TotalVotes(),
		data:   data,
	}, nil
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("hub panic")
		}
	}()

	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))

			if depth > commandCapacity*8/10 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.id)
			case publishCmd:
				h.handlePublish(c.msg)
			case sendCmd:
				h.handleSend(c)
			case countCmd:
				c.reply <- len(h.clients)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting client: max clients reached", "max_clients", h.maxClients)
		_ = c.connection.Close()
		c.reply <- registerReply{err: fmt.Errorf("%w (%d)", ErrHubFull, h.maxClients)}
		return
	}

	id := uuid.New()
	interest := make(map[string]struct{}, len(c.pollIDs))
	for _, p := range c.pollIDs {
		interest[p] = struct{}{}
	}

	onWritten := func() {
		h.delivered.Add(1)
		metrics.HubMessagesDelivered.Inc()
	}
	// The writer goroutine must not block on the hub, and the hub waits for
	// writers when it stops them.
	onFailure := func() { go h.Unregister(id) }

	h.clients[id] = &client{
		writer:   newClientWriter(c.connection, h.clock, onWritten, onFailure),
		interest: interest,
	}
	metrics.HubConnectedClients.Inc()

	slog.Debug("Client registered", "client_id", id.String(), "polls", c.pollIDs, "total_clients", len(h.clients))
	c.reply <- registerReply{id: id}
}

func (h *Hub) handleUnregister(id uuid.UUID) {
	c, ok := h.clients[id]
	if !ok {
		return
	}

	c.writer.stop()
	delete(h.clients, id)
	metrics.HubConnectedClients.Dec()

	slog.Debug("Client unregistered", "client_id", id.String(), "remaining_clients", len(h.clients))
}

func (h *Hub) handlePublish(msg outbound) {
	var slow []uuid.UUID
	for id, c := range h.clients {
		if !c.wants(msg.pollID) {
			continue
		}
		if !c.writer.enqueue(msg) {
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		slog.Warn("Disconnecting slow client", "client_id", id.String(), "poll_id", msg.pollID)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(id)
	}
}

func (h *Hub) handleSend(c sendCmd) {
	cl, ok := h.clients[c.id]
	if !ok {
		return
	}
	if !cl.writer.enqueue(c.msg) {
		slog.Warn("Disconnecting slow client", "client_id", c.id.String(), "poll_id", c.msg.pollID)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(c.id)
	}
}

func (h *Hub) handleStop() {
	total := len(h.clients)
	slog.Info("Hub shutting down", "clients", total)

	h.closeAllClients("Server shutting down")

	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for id, c := range h.clients {
		c.writer.stopGraceful(reason)
		delete(h.clients, id)
	}
	metrics.HubConnectedClients.Set(0)
}
