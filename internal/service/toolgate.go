package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/audit"
	"github.com/Strob0t/CoachGate/internal/domain/run"
	"github.com/Strob0t/CoachGate/internal/observability"
	"github.com/Strob0t/CoachGate/internal/protocol"
)

// ToolGate mediates one tool invocation through the audit coordinator. The
// agent producer calls back into the gate while streaming; the gate proposes
// the call to the reviewing connection and blocks until a decision arrives.
type ToolGate struct {
	coord   *audit.Coordinator
	metrics *observability.Metrics
}

// NewToolGate creates a ToolGate.
func NewToolGate(coord *audit.Coordinator, metrics *observability.Metrics) *ToolGate {
	return &ToolGate{coord: coord, metrics: metrics}
}

// ToolAwaitRequest describes one tool call awaiting approval.
type ToolAwaitRequest struct {
	UserID     uuid.UUID
	ThreadID   string
	RunID      string
	ToolName   string
	Args       map[string]any
	ToolCallID string
}

// ToolAwaitResult is the gate's verdict, returned to the agent.
type ToolAwaitResult struct {
	Approved   bool           `json:"approved"`
	ToolCallID string         `json:"toolCallId"`
	Args       map[string]any `json:"args,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Await routes one tool call through the approval round trip.
//
// A run with no registered session is approved with the original args: the
// registry entry may have been lost (restart mid-run) and denying would
// deadlock the agent. Unknown tools are denied outright. The auto-approve
// policy bypasses the round trip entirely; no TOOL_CALL_PROPOSED is emitted
// and no decision is awaited.
func (g *ToolGate) Await(ctx context.Context, req ToolAwaitRequest) ToolAwaitResult {
	toolCallID := req.ToolCallID
	if toolCallID == "" {
		toolCallID = uuid.NewString()
	}

	key := run.Key{UserID: req.UserID, ThreadID: req.ThreadID, RunID: req.RunID}
	session, ok := g.coord.GetRun(key)
	if !ok {
		slog.Warn("tool gate: no session, approving",
			"thread_id", req.ThreadID,
			"run_id", req.RunID,
			"tool", req.ToolName,
		)
		return ToolAwaitResult{Approved: true, ToolCallID: toolCallID, Args: req.Args}
	}

	if !KnownTool(req.ToolName) {
		return ToolAwaitResult{
			Approved:   false,
			ToolCallID: toolCallID,
			Reason:     "unknown tool: " + req.ToolName,
		}
	}

	if session.Policy.AutoApproveToolCalls {
		return ToolAwaitResult{Approved: true, ToolCallID: toolCallID, Args: req.Args}
	}

	if g.metrics != nil {
		g.metrics.ToolCallsProposed.Add(ctx, 1)
	}
	g.emit(ctx, session, protocol.Event{
		Type:       protocol.EventToolCallProposed,
		ThreadID:   req.ThreadID,
		RunID:      req.RunID,
		ToolCallID: toolCallID,
		ToolName:   req.ToolName,
		Args:       req.Args,
	})

	decision, ok := g.coord.AwaitToolDecision(ctx, key, toolCallID)
	if !ok {
		// The caller cancelled while waiting (the agent gave up on the
		// callback). Unlike the missing-session fallback above, the session
		// exists and a reviewer was asked; nothing gets approved without an
		// actual decision.
		slog.Info("tool gate: wait cancelled before decision",
			"thread_id", req.ThreadID,
			"run_id", req.RunID,
			"tool_call_id", toolCallID,
		)
		return ToolAwaitResult{
			Approved:   false,
			ToolCallID: toolCallID,
			Reason:     "decision wait cancelled",
		}
	}

	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "denied"
		}
		g.emit(ctx, session, protocol.Event{
			Type:       protocol.EventToolCallDenied,
			ThreadID:   req.ThreadID,
			RunID:      req.RunID,
			ToolCallID: toolCallID,
			Reason:     reason,
		})
		return ToolAwaitResult{Approved: false, ToolCallID: toolCallID, Reason: reason}
	}

	g.emit(ctx, session, protocol.Event{
		Type:         protocol.EventToolCallApproved,
		ThreadID:     req.ThreadID,
		RunID:        req.RunID,
		ToolCallID:   toolCallID,
		ArgsOverride: decision.ArgsOverride,
	})

	args := req.Args
	if decision.ArgsOverride != nil {
		args = decision.ArgsOverride
	}
	return ToolAwaitResult{Approved: true, ToolCallID: toolCallID, Args: args}
}

func (g *ToolGate) emit(ctx context.Context, session *audit.Session, ev protocol.Event) {
	if err := session.Send(ctx, ev); err != nil {
		slog.Warn("tool gate send failed", "type", string(ev.Type), "error", err)
	}
}
