package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// Conn is the part of *websocket.Conn the hub needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// outbound is one serialized envelope plus what the writer needs to order it.
type outbound struct {
	pollID string
	kind   domain.EventKind
	total  int64
	data   []byte
}

type clientWriter struct {
	connection  Conn
	clock       clockwork.Clock
	sendChannel chan outbound
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Owned by run. Highest total written per poll.
	lastTotal map[string]int64

	onWritten func()
	onFailure func()
}

func newClientWriter(connection Conn, clock clockwork.Clock, onWritten, onFailure func()) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan outbound, messageBufferSize),
		doneChannel: make(chan struct{}),
		lastTotal:   make(map[string]int64),
		onWritten:   onWritten,
		onFailure:   onFailure,
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue hands msg to the writer without blocking. It reports false when the
// buffer is full.
func (cw *clientWriter) enqueue(msg outbound) bool {
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			if cw.stale(msg) {
				metrics.HubStaleDropped.Inc()
				continue
			}

			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				if cw.stopping() {
					return
				}
				slog.Warn("Websocket delivery failed", "poll_id", msg.pollID, "type", msg.kind, "error", err)
				metrics.HubDeliveryFailures.Inc()
				cw.onFailure()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())

			cw.record(msg)
			cw.onWritten()
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if cw.stopping() {
					return
				}
				metrics.WebSocketPingFailures.Inc()
				cw.onFailure()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// stale reports whether the connection already saw a higher tally for the
// poll. Equal totals pass so status changes without new votes get through.
func (cw *clientWriter) stale(msg outbound) bool {
	if msg.kind == domain.EventPollDeleted {
		return false
	}
	last, seen := cw.lastTotal[msg.pollID]
	return seen && msg.total < last
}

func (cw *clientWriter) record(msg outbound) {
	if msg.kind == domain.EventPollDeleted {
		delete(cw.lastTotal, msg.pollID)
		return
	}
	cw.lastTotal[msg.pollID] = msg.total
}

func (cw *clientWriter) stopping() bool {
	select {
	case <-cw.doneChannel:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The close frame must not race a write from run.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)

		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
