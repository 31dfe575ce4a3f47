package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/port/trail"
	"github.com/Strob0t/CoachGate/internal/protocol"
)

// conn is the per-connection state. One client socket carries the full
// protocol for one authenticated user: run requests and decision frames
// inbound, protocol events outbound.
type conn struct {
	ws     *websocket.Conn
	userID uuid.UUID
	audit  bool
	trail  trail.Publisher

	// writeMu serializes outbound writes. The dispatch loop, the run
	// goroutine, and the tool gate all send on this connection.
	writeMu sync.Mutex

	// run is the handle for the connection's active run, nil before the first
	// request. A new request is rejected while run is unfinished.
	run *runHandle
}

// runHandle tracks one spawned run goroutine.
type runHandle struct {
	runID string
	done  chan struct{}
}

func (h *runHandle) finished() bool {
	if h == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// send marshals and writes one protocol event, then mirrors it to the audit
// trail. Safe for concurrent callers.
func (c *conn) send(ctx context.Context, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = c.ws.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	if c.trail != nil && ev.ThreadID != "" && ev.RunID != "" {
		c.trail.Publish(ctx, ev.ThreadID, ev.RunID, data)
	}
	return nil
}

// sender adapts the connection to the protocol.Sender signature.
func (c *conn) sender() protocol.Sender {
	return func(ctx context.Context, ev protocol.Event) error {
		return c.send(ctx, ev)
	}
}

// sendBestEffort is send for paths where a write failure only merits a log.
func (c *conn) sendBestEffort(ctx context.Context, ev protocol.Event) {
	if err := c.send(ctx, ev); err != nil {
		slog.Debug("websocket send failed", "type", string(ev.Type), "error", err)
	}
}
