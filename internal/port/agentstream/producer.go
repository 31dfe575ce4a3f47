// Package agentstream defines the port for the agent stream producer: an
// opaque engine that executes one run and yields an ordered sequence of
// tagged events.
package agentstream

import "context"

// EventType tags one producer event.
type EventType string

const (
	EventToolCallStarted  EventType = "TOOL_CALL_STARTED"
	EventToolCallResult   EventType = "TOOL_CALL_RESULT"
	EventTextMessageChunk EventType = "TEXT_MESSAGE_CHUNK"
	EventRunError         EventType = "RUN_ERROR"
	EventRunFinished      EventType = "RUN_FINISHED"
)

// Event is one producer event. Fields are populated per type.
type Event struct {
	Type       EventType      `json:"type"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Label      string         `json:"label,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     any            `json:"result,omitempty"`
	MessageID  string         `json:"messageId,omitempty"`
	Role       string         `json:"role,omitempty"`
	Delta      string         `json:"delta,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// Request describes one run invocation.
type Request struct {
	UserID   string         `json:"userId"`
	ThreadID string         `json:"threadId"`
	RunID    string         `json:"runId,omitempty"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	MaxTurns int            `json:"maxTurns,omitempty"`
}

// Producer runs the agent and streams events back.
type Producer interface {
	// Stream starts a run and returns a channel of ordered events. The channel
	// is closed when the stream terminates. A non-nil error means the stream
	// could not be established at all.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
