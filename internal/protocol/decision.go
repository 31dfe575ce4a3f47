package protocol

import (
	"encoding/json"
	"strings"
)

// DecisionType enumerates every inbound decision-resolution kind.
type DecisionType string

const (
	DecisionStageApproved     DecisionType = "RUN_STAGE_APPROVED"
	DecisionStageDenied       DecisionType = "RUN_STAGE_DENIED"
	DecisionToolApproved      DecisionType = "TOOL_CALL_APPROVED"
	DecisionToolDenied        DecisionType = "TOOL_CALL_DENIED"
	DecisionAssistantApproved DecisionType = "ASSISTANT_FINAL_APPROVED"
	DecisionAssistantDenied   DecisionType = "ASSISTANT_FINAL_DENIED"
)

// Decision is a parsed decision-resolution frame from the reviewer.
type Decision struct {
	Type         DecisionType
	ThreadID     string
	RunID        string
	ToolCallID   string
	PayloadEdits map[string]any
	ArgsOverride map[string]any
	FinalText    string
	Reason       string
}

// ParseDecision attempts to read an inbound frame as a decision resolution.
// Parsing is deliberately permissive: unknown or missing type tags, or missing
// thread/run ids, report not-a-decision so the frame can fall through to
// run-request parsing. Wrong-typed optional fields are dropped, not errors.
// Tool decisions without a tool-call id are consumed with an empty id; the
// dispatcher drops them.
func ParseDecision(raw []byte) (*Decision, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}

	t, _ := payload["type"].(string)
	switch DecisionType(t) {
	case DecisionStageApproved, DecisionStageDenied,
		DecisionToolApproved, DecisionToolDenied,
		DecisionAssistantApproved, DecisionAssistantDenied:
	default:
		return nil, false
	}

	threadID, _ := payload["threadId"].(string)
	runID, _ := payload["runId"].(string)
	if threadID == "" || runID == "" {
		return nil, false
	}

	d := &Decision{
		Type:     DecisionType(t),
		ThreadID: threadID,
		RunID:    runID,
	}
	if v, ok := payload["toolCallId"].(string); ok {
		d.ToolCallID = strings.TrimSpace(v)
	}
	if v, ok := payload["payloadEdits"].(map[string]any); ok {
		d.PayloadEdits = v
	}
	if v, ok := payload["argsOverride"].(map[string]any); ok {
		d.ArgsOverride = v
	}
	if v, ok := payload["finalText"].(string); ok {
		d.FinalText = v
	}
	if v, ok := payload["reason"].(string); ok {
		d.Reason = v
	}
	return d, true
}
