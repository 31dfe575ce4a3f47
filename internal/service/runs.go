package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/audit"
	"github.com/Strob0t/CoachGate/internal/domain/event"
	"github.com/Strob0t/CoachGate/internal/domain/run"
	"github.com/Strob0t/CoachGate/internal/observability"
	"github.com/Strob0t/CoachGate/internal/port/agentstream"
	"github.com/Strob0t/CoachGate/internal/port/eventstore"
	"github.com/Strob0t/CoachGate/internal/protocol"
)

// fallbackAnswer is used when the agent produced no usable text.
const fallbackAnswer = "OK."

// RunService drives one agent run end-to-end: it persists the inbound user
// message, builds context, stages the run for review in audit mode, relays
// the agent stream, and stages the draft answer for a final review pass.
// Each run executes as its own goroutine spawned by the connection loop.
type RunService struct {
	coord    *audit.Coordinator
	agent    agentstream.Producer
	events   eventstore.Store
	profiles *ProfilesService
	chat     *ChatService
	metrics  *observability.Metrics
	maxTurns int
}

// NewRunService creates a RunService.
func NewRunService(
	coord *audit.Coordinator,
	agent agentstream.Producer,
	events eventstore.Store,
	profiles *ProfilesService,
	chat *ChatService,
	metrics *observability.Metrics,
	maxTurns int,
) *RunService {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &RunService{
		coord:    coord,
		agent:    agent,
		events:   events,
		profiles: profiles,
		chat:     chat,
		metrics:  metrics,
		maxTurns: maxTurns,
	}
}

// RunParams describes one run invocation.
type RunParams struct {
	UserID uuid.UUID
	Req    *run.Request
	Audit  bool
	Send   protocol.Sender
}

// Process executes one run to its terminal event. Failures never propagate to
// the caller: every exit path emits exactly one RUN_FINISHED (preceded by
// RUN_ERROR on failure) and releases the coordinator session.
func (s *RunService) Process(ctx context.Context, p RunParams) {
	threadID := p.Req.ThreadID
	runID := p.Req.RunID
	key := p.Req.Key(p.UserID)

	if s.metrics != nil {
		s.metrics.RunsStarted.Add(ctx, 1)
	}
	started := time.Now()

	var auditSession *audit.Session
	defer func() {
		if r := recover(); r != nil {
			slog.Error("run panicked", "thread_id", threadID, "run_id", runID, "panic", r)
			s.emit(ctx, p.Send, protocol.RunError(threadID, runID, "internal error"))
			s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
		}
		if auditSession != nil {
			s.coord.EndRun(key)
		}
	}()

	if p.Audit {
		auditSession = s.coord.StartRun(key, p.Send, run.PolicyFromForwardedProps(p.Req.ForwardedProps))
	}

	err := s.process(ctx, p, auditSession)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RunsFailed.Add(ctx, 1)
		}
		slog.Error("run failed", "thread_id", threadID, "run_id", runID, "error", err)
		s.emit(ctx, p.Send, protocol.RunError(threadID, runID, fmt.Sprintf("chat backend failed: %v", err)))
		s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
		return
	}

	if s.metrics != nil {
		s.metrics.RunDuration.Record(ctx, time.Since(started).Seconds())
	}
}

// process runs the state machine. It returns an error only for failures that
// should surface as RUN_ERROR; review denials and agent stream errors emit
// their own events and return nil.
func (s *RunService) process(ctx context.Context, p RunParams, auditSession *audit.Session) error {
	threadID := p.Req.ThreadID
	runID := p.Req.RunID

	// Persist the user message immediately so the chat thread shows it.
	if err := s.chat.PersistUserMessage(ctx, p.UserID, threadID, p.Req.Message); err != nil {
		return err
	}

	contextPayload, err := s.buildContext(ctx, p)
	if err != nil {
		return err
	}

	finalMessage := p.Req.Message
	finalContext := contextPayload

	if auditSession != nil {
		s.emit(ctx, p.Send, protocol.Event{
			Type:     protocol.EventRunStaged,
			ThreadID: threadID,
			RunID:    runID,
			Payload: map[string]any{
				"message":        p.Req.Message,
				"context":        contextPayload,
				"forwardedProps": orEmpty(p.Req.ForwardedProps),
			},
		})

		decision, _ := auditSession.AwaitStage(ctx)
		if !decision.Approved {
			s.emit(ctx, p.Send, protocol.Event{
				Type:     protocol.EventRunStageDenied,
				ThreadID: threadID,
				RunID:    runID,
				Reason:   orDenied(decision.Reason),
			})
			s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
			return nil
		}

		// The reviewer's edits override the message text and/or context used
		// for the actual invocation; everything else is preserved.
		if edits := decision.PayloadEdits; edits != nil {
			if m, ok := edits["message"].(string); ok && strings.TrimSpace(m) != "" {
				finalMessage = m
			}
			if c, ok := edits["context"].(map[string]any); ok {
				finalContext = c
			}
		}
		finalMessage = strings.TrimSpace(finalMessage)

		s.emit(ctx, p.Send, protocol.Event{
			Type:         protocol.EventRunStageApproved,
			ThreadID:     threadID,
			RunID:        runID,
			PayloadEdits: decision.PayloadEdits,
		})
	}

	s.emit(ctx, p.Send, protocol.Event{
		Type:        protocol.EventRunStarted,
		ThreadID:    threadID,
		RunID:       runID,
		ParentRunID: p.Req.ParentRunID,
	})

	streamReq := agentstream.Request{
		UserID:   p.UserID.String(),
		ThreadID: threadID,
		Message:  finalMessage,
		Context:  finalContext,
		MaxTurns: s.maxTurns,
	}
	if p.Audit {
		// The run id lets the agent route tool calls back through the gate.
		streamReq.RunID = runID
	}

	stream, err := s.agent.Stream(ctx, streamReq)
	if err != nil {
		return fmt.Errorf("agent stream: %w", err)
	}

	var textParts []string
	for ev := range stream {
		switch ev.Type {
		case agentstream.EventRunError:
			if s.metrics != nil {
				s.metrics.RunsFailed.Add(ctx, 1)
			}
			s.emit(ctx, p.Send, protocol.RunError(threadID, runID, orAgentFailed(ev.Message)))
			s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
			return nil

		case agentstream.EventToolCallStarted:
			s.emit(ctx, p.Send, protocol.Event{
				Type:       protocol.EventToolCallStarted,
				ThreadID:   threadID,
				RunID:      runID,
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
				Label:      ev.Label,
				Args:       ev.Args,
			})

		case agentstream.EventToolCallResult:
			s.emit(ctx, p.Send, protocol.Event{
				Type:       protocol.EventToolCallResult,
				ThreadID:   threadID,
				RunID:      runID,
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
				Label:      ev.Label,
				Result:     ev.Result,
			})

		case agentstream.EventTextMessageChunk:
			if strings.TrimSpace(ev.Delta) != "" {
				textParts = append(textParts, ev.Delta)
			}
			if auditSession == nil {
				// In audit mode the draft is withheld until the final gate.
				s.emit(ctx, p.Send, protocol.Event{
					Type:      protocol.EventTextMessageChunk,
					MessageID: ev.MessageID,
					Role:      ev.Role,
					Delta:     ev.Delta,
				})
			}

		case agentstream.EventRunFinished:
			// Stream close is the termination signal.
		}
	}

	if s.metrics != nil {
		s.metrics.RunsCompleted.Add(ctx, 1)
	}

	draft := strings.TrimSpace(strings.Join(textParts, "\n\n"))
	if draft == "" {
		draft = fallbackAnswer
	}

	if auditSession != nil {
		s.emit(ctx, p.Send, protocol.Event{
			Type:      protocol.EventAssistantDraftProposed,
			ThreadID:  threadID,
			RunID:     runID,
			DraftText: draft,
		})

		decision, _ := auditSession.AwaitAssistant(ctx)
		if !decision.Approved {
			s.emit(ctx, p.Send, protocol.Event{
				Type:     protocol.EventAssistantFinalDenied,
				ThreadID: threadID,
				RunID:    runID,
				Reason:   orDenied(decision.Reason),
			})
			s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
			return nil
		}

		finalText := strings.TrimSpace(decision.FinalText)
		if finalText == "" {
			finalText = draft
		}
		if err := s.chat.PersistAssistantMessage(ctx, p.UserID, threadID, finalText); err != nil {
			return err
		}
		s.emit(ctx, p.Send, protocol.Event{Type: protocol.EventTextMessageChunk, Delta: finalText})
		s.emit(ctx, p.Send, protocol.Event{
			Type:      protocol.EventAssistantFinalApproved,
			ThreadID:  threadID,
			RunID:     runID,
			FinalText: finalText,
		})
		s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
		return nil
	}

	if err := s.chat.PersistAssistantMessage(ctx, p.UserID, threadID, draft); err != nil {
		return err
	}
	s.emit(ctx, p.Send, protocol.RunFinished(threadID, runID))
	return nil
}

// buildContext assembles the agent context: the projected state of all
// non-chat events for this thread, with the canonical profile taking
// precedence over any profile payload reconstructed from event history, plus
// any uiContext forwarded by the client.
func (s *RunService) buildContext(ctx context.Context, p RunParams) (map[string]any, error) {
	history, err := s.events.ListByUserThread(ctx, p.UserID, p.Req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	nonChat := make([]event.Event, 0, len(history))
	for _, ev := range history {
		if ev.Type != event.TypeChatMessageSent {
			nonChat = append(nonChat, ev)
		}
	}
	snapshot := event.ProjectState(nonChat).Snapshot()

	profileMap, err := s.profiles.GetProfileMap(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if profileMap != nil {
		snapshot["profile"] = profileMap
	}

	uiContext := map[string]any{}
	if p.Req.ForwardedProps != nil {
		if ui, ok := p.Req.ForwardedProps["uiContext"].(map[string]any); ok {
			uiContext = ui
		}
	}

	return map[string]any{"ui": uiContext, "state": snapshot}, nil
}

func (s *RunService) emit(ctx context.Context, send protocol.Sender, ev protocol.Event) {
	if err := send(ctx, ev); err != nil {
		slog.Warn("run event send failed", "type", string(ev.Type), "error", err)
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orDenied(reason string) string {
	if reason == "" {
		return "denied"
	}
	return reason
}

func orAgentFailed(msg string) string {
	if msg == "" {
		return "agent_failed"
	}
	return msg
}
