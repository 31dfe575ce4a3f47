// Package ws implements the WebSocket adapter: the persistent realtime
// connection that carries run requests and reviewer decisions inbound and
// protocol events outbound.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/CoachGate/internal/audit"
	"github.com/Strob0t/CoachGate/internal/domain/run"
	"github.com/Strob0t/CoachGate/internal/observability"
	"github.com/Strob0t/CoachGate/internal/port/tokenstore"
	"github.com/Strob0t/CoachGate/internal/port/trail"
	"github.com/Strob0t/CoachGate/internal/protocol"
	"github.com/Strob0t/CoachGate/internal/service"
)

// StatusUnauthorized is the close code sent when token auth fails.
const StatusUnauthorized = websocket.StatusCode(4401)

// frameQueueSize bounds inbound frames queued between the reader and the
// dispatch loop.
const frameQueueSize = 16

// Handler upgrades and serves realtime connections.
type Handler struct {
	tokens  tokenstore.Store
	coord   *audit.Coordinator
	runs    *service.RunService
	trail   trail.Publisher
	metrics *observability.Metrics
}

// NewHandler creates a Handler. trail and metrics may be nil.
func NewHandler(
	tokens tokenstore.Store,
	coord *audit.Coordinator,
	runs *service.RunService,
	trailPub trail.Publisher,
	metrics *observability.Metrics,
) *Handler {
	return &Handler{
		tokens:  tokens,
		coord:   coord,
		runs:    runs,
		trail:   trailPub,
		metrics: metrics,
	}
}

// HandleWS upgrades the request and serves the connection until the client
// disconnects. Auth is a ?token= query parameter resolved against the token
// store; ?mode=audit puts the connection's runs through the review gates.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	token := r.URL.Query().Get("token")
	userID, err := h.tokens.UserForToken(ctx, token)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrUnknownToken) {
			slog.Error("token lookup failed", "error", err)
		}
		_ = sock.Close(StatusUnauthorized, "unauthorized")
		return
	}

	c := &conn{
		ws:     sock,
		userID: userID,
		audit:  r.URL.Query().Get("mode") == "audit",
		trail:  h.trail,
	}

	slog.Info("websocket connected",
		"remote", r.RemoteAddr,
		"user_id", userID,
		"audit", c.audit,
	)

	err = h.serve(ctx, c)
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("websocket closed", "user_id", userID, "error", err)
	} else {
		slog.Info("websocket disconnected", "user_id", userID)
	}
	_ = sock.Close(websocket.StatusNormalClosure, "")
}

// serve runs the read and dispatch loops until the connection drops. A run in
// flight when the client disconnects keeps executing on a detached context;
// its decision waits resolve only when the session is released, so abandoned
// runs end when their awaits are cancelled by run completion paths or the
// process exits.
func (h *Handler) serve(ctx context.Context, c *conn) error {
	// Buffered so the reader keeps draining the socket while dispatch is
	// busy, e.g. writing an error response behind a slow client.
	frames := make(chan []byte, frameQueueSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		for {
			_, data, err := c.ws.Read(ctx)
			if err != nil {
				return err
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case data, ok := <-frames:
				if !ok {
					return nil
				}
				h.dispatch(ctx, c, data)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return g.Wait()
}

// dispatch routes one inbound frame. Decision frames resolve synchronously and
// never block; anything else is treated as a run request.
func (h *Handler) dispatch(ctx context.Context, c *conn, raw []byte) {
	if h.metrics != nil {
		h.metrics.WSMessages.Add(ctx, 1)
	}

	if d, ok := protocol.ParseDecision(raw); ok {
		h.resolve(c, d)
		return
	}

	req, err := protocol.ParseRunRequest(raw)
	if err != nil {
		slog.Debug("malformed frame", "user_id", c.userID, "error", err)
		c.sendBestEffort(ctx, protocol.RunError("", "", "malformed run request"))
		return
	}

	if !c.run.finished() {
		c.sendBestEffort(ctx, protocol.RunError(req.ThreadID, req.RunID,
			"a run is already active on this connection"))
		return
	}

	handle := &runHandle{runID: req.RunID, done: make(chan struct{})}
	c.run = handle

	// The run outlives the request context: a disconnect mid-run must not
	// cancel agent work or drop the terminal events on the floor.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(handle.done)
		h.runs.Process(runCtx, service.RunParams{
			UserID: c.userID,
			Req:    req,
			Audit:  c.audit,
			Send:   c.sender(),
		})
	}()
}

// resolve delivers a reviewer decision to the coordinator. Decisions for
// unknown runs or already-resolved gates are dropped silently; the reviewer
// may be replaying a stale frame.
func (h *Handler) resolve(c *conn, d *protocol.Decision) {
	key := run.Key{UserID: c.userID, ThreadID: d.ThreadID, RunID: d.RunID}

	var delivered bool
	switch d.Type {
	case protocol.DecisionStageApproved:
		delivered = h.coord.ResolveStage(key, run.StageDecision{
			Approved:     true,
			PayloadEdits: d.PayloadEdits,
			Reason:       d.Reason,
		})
	case protocol.DecisionStageDenied:
		delivered = h.coord.ResolveStage(key, run.StageDecision{Reason: d.Reason})
	case protocol.DecisionAssistantApproved:
		delivered = h.coord.ResolveAssistant(key, run.AssistantDecision{
			Approved:  true,
			FinalText: d.FinalText,
			Reason:    d.Reason,
		})
	case protocol.DecisionAssistantDenied:
		delivered = h.coord.ResolveAssistant(key, run.AssistantDecision{Reason: d.Reason})
	case protocol.DecisionToolApproved, protocol.DecisionToolDenied:
		if d.ToolCallID == "" {
			slog.Debug("tool decision without tool call id dropped", "run_id", d.RunID)
			return
		}
		delivered = h.coord.ResolveTool(key, d.ToolCallID, run.ToolDecision{
			Approved:     d.Type == protocol.DecisionToolApproved,
			ArgsOverride: d.ArgsOverride,
			Reason:       d.Reason,
		})
	}

	if !delivered {
		slog.Debug("decision not delivered",
			"type", string(d.Type),
			"thread_id", d.ThreadID,
			"run_id", d.RunID,
		)
	}
}
