// Package protocol defines the wire protocol spoken over the realtime
// connection: inbound run requests and approval decisions, and the outbound
// event set. Frames are JSON objects with the event type at the top level.
package protocol

import "context"

// EventType enumerates every outbound event kind.
type EventType string

const (
	EventRunStaged              EventType = "RUN_STAGED"
	EventRunStageApproved       EventType = "RUN_STAGE_APPROVED"
	EventRunStageDenied         EventType = "RUN_STAGE_DENIED"
	EventRunStarted             EventType = "RUN_STARTED"
	EventToolCallStarted        EventType = "TOOL_CALL_STARTED"
	EventToolCallProposed       EventType = "TOOL_CALL_PROPOSED"
	EventToolCallApproved       EventType = "TOOL_CALL_APPROVED"
	EventToolCallDenied         EventType = "TOOL_CALL_DENIED"
	EventToolCallResult         EventType = "TOOL_CALL_RESULT"
	EventTextMessageChunk       EventType = "TEXT_MESSAGE_CHUNK"
	EventAssistantDraftProposed EventType = "ASSISTANT_DRAFT_PROPOSED"
	EventAssistantFinalApproved EventType = "ASSISTANT_FINAL_APPROVED"
	EventAssistantFinalDenied   EventType = "ASSISTANT_FINAL_DENIED"
	EventRunError               EventType = "RUN_ERROR"
	EventRunFinished            EventType = "RUN_FINISHED"
)

// Event is one outbound protocol frame. Fields are populated per event type;
// unused fields are omitted from the encoding.
type Event struct {
	Type         EventType      `json:"type"`
	ThreadID     string         `json:"threadId,omitempty"`
	RunID        string         `json:"runId,omitempty"`
	ParentRunID  string         `json:"parentRunId,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	PayloadEdits map[string]any `json:"payloadEdits,omitempty"`
	ToolCallID   string         `json:"toolCallId,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	Label        string         `json:"label,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	ArgsOverride map[string]any `json:"argsOverride,omitempty"`
	Result       any            `json:"result,omitempty"`
	MessageID    string         `json:"messageId,omitempty"`
	Role         string         `json:"role,omitempty"`
	Delta        string         `json:"delta,omitempty"`
	DraftText    string         `json:"draftText,omitempty"`
	FinalText    string         `json:"finalText,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Sender delivers one outbound event on the owning connection. Implementations
// must be safe for concurrent callers; the dispatch loop and the run task both
// send.
type Sender func(ctx context.Context, ev Event) error

// RunError builds the generic error event for a run (ids may be empty when the
// failure happened before a request was parsed).
func RunError(threadID, runID, message string) Event {
	return Event{Type: EventRunError, ThreadID: threadID, RunID: runID, Message: message}
}

// RunFinished builds the terminal event for a run.
func RunFinished(threadID, runID string) Event {
	return Event{Type: EventRunFinished, ThreadID: threadID, RunID: runID}
}
