// Package broadcast implements the websocket fan-out hub using the actor pattern.
//
// One goroutine owns the connection registry and serves register, unregister and
// publish commands from a channel in FIFO order, so registry changes never interleave
// with a fan-out. Each connection has its own writer goroutine with a bounded buffer;
// a full buffer evicts the client and a failed write unregisters it. Neither affects
// the other connections.
package broadcast
