// Package run defines the Run identity and decision types for audited agent runs.
package run

import (
	"github.com/google/uuid"
)

// Key identifies one in-flight run. A thread may have many runs over time; a
// run belongs to exactly one thread and one user.
type Key struct {
	UserID   uuid.UUID
	ThreadID string
	RunID    string
}

// Request is a validated inbound run request from the connection.
type Request struct {
	ThreadID       string         `json:"threadId"`
	RunID          string         `json:"runId"`
	ParentRunID    string         `json:"parentRunId,omitempty"`
	Message        string         `json:"message"`
	ForwardedProps map[string]any `json:"forwardedProps,omitempty"`
}

// Key returns the registry key for this request on behalf of the given user.
func (r *Request) Key(userID uuid.UUID) Key {
	return Key{UserID: userID, ThreadID: r.ThreadID, RunID: r.RunID}
}

// StageDecision resolves the stage gate: the first human-review checkpoint,
// before the agent executes at all.
type StageDecision struct {
	Approved     bool
	PayloadEdits map[string]any
	Reason       string
}

// AssistantDecision resolves the assistant gate: the second checkpoint, before
// the agent's draft answer is delivered.
type AssistantDecision struct {
	Approved  bool
	FinalText string
	Reason    string
}

// ToolDecision resolves one tool-call gate.
type ToolDecision struct {
	Approved     bool
	ArgsOverride map[string]any
	Reason       string
}

// Policy is per-run audit configuration derived from the run request.
// AutoApproveToolCalls bypasses only the tool-call gate; the stage and
// assistant gates still apply.
type Policy struct {
	AutoApproveToolCalls bool
}

// PolicyFromForwardedProps reads the audit policy out of the request's
// forwardedProps, tolerating any malformed shape.
func PolicyFromForwardedProps(props map[string]any) Policy {
	if props == nil {
		return Policy{}
	}
	raw, ok := props["auditPolicy"].(map[string]any)
	if !ok {
		return Policy{}
	}
	auto, _ := raw["autoApproveToolCalls"].(bool)
	return Policy{AutoApproveToolCalls: auto}
}
