package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/port/toolexec"
	"github.com/Strob0t/CoachGate/internal/service"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	tools toolexec.Executor
	gate  *service.ToolGate
}

// NewHandlers creates the handler set.
func NewHandlers(tools toolexec.Executor, gate *service.ToolGate) *Handlers {
	return &Handlers{tools: tools, gate: gate}
}

// Health responds to liveness probes.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type executeToolRequest struct {
	UserID   string         `json:"userId"`
	ThreadID string         `json:"threadId"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
}

// ExecuteTool runs an approved tool on the agent's behalf.
func (h *Handlers) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executeToolRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool is required")
		return
	}

	result, err := h.tools.Execute(r.Context(), userID, req.ThreadID, req.Tool, req.Args)
	if err != nil {
		writeToolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

type awaitToolRequest struct {
	UserID     string         `json:"userId"`
	ThreadID   string         `json:"threadId"`
	RunID      string         `json:"runId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
	ToolCallID string         `json:"toolCallId"`
}

// AwaitToolDecision blocks until the reviewing connection rules on the tool
// call, then returns the verdict to the agent. The agent keeps its stream open
// while this request is in flight.
func (h *Handlers) AwaitToolDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[awaitToolRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "toolName is required")
		return
	}

	result := h.gate.Await(r.Context(), service.ToolAwaitRequest{
		UserID:     userID,
		ThreadID:   req.ThreadID,
		RunID:      req.RunID,
		ToolName:   req.ToolName,
		Args:       req.Args,
		ToolCallID: req.ToolCallID,
	})
	writeJSON(w, http.StatusOK, result)
}
