// Package audit implements the in-memory approval coordinator for audited runs.
//
// The coordinator is a single-process registry of in-flight run sessions keyed
// by (user, thread, run). Each session carries three kinds of one-shot decision
// slots: one stage slot, one assistant slot, and a dynamic set of tool slots
// keyed by tool-call id. Running multiple instances of the service will not
// coordinate approvals across processes; that requires replacing this registry
// with a shared store.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/CoachGate/internal/domain/run"
	"github.com/Strob0t/CoachGate/internal/protocol"
)

// Session is the live state for one in-flight run.
//
// Decision slots are only mutated through the coordinator's resolve operations
// and the session's await operations; the (user, thread, run) key is the only
// external handle.
type Session struct {
	Key       run.Key
	Policy    run.Policy
	Send      protocol.Sender
	CreatedAt time.Time

	stage     *slot[run.StageDecision]
	assistant *slot[run.AssistantDecision]

	mu    sync.Mutex
	tools map[string]*slot[run.ToolDecision]
}

// AwaitStage blocks until the stage gate resolves or ctx is done.
func (s *Session) AwaitStage(ctx context.Context) (run.StageDecision, bool) {
	return s.stage.Await(ctx)
}

// AwaitAssistant blocks until the assistant gate resolves or ctx is done.
func (s *Session) AwaitAssistant(ctx context.Context) (run.AssistantDecision, bool) {
	return s.assistant.Await(ctx)
}

// toolSlot returns the slot for the given tool-call id, creating it when
// create is set. The first party to touch a tool-call id creates the slot and
// the second reuses it, which makes the resolve/await race safe.
func (s *Session) toolSlot(toolCallID string, create bool) *slot[run.ToolDecision] {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.tools[toolCallID]
	if !ok && create {
		sl = newSlot[run.ToolDecision]()
		s.tools[toolCallID] = sl
	}
	return sl
}

// Coordinator registers in-flight runs and routes approval decisions to them.
// All operations are safe for concurrent callers.
type Coordinator struct {
	mu   sync.Mutex
	runs map[run.Key]*Session
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{runs: make(map[run.Key]*Session)}
}

// StartRun creates and registers a session for the key. Any previous session
// with the same key is overwritten; callers are expected to have ended it
// first, but the coordinator does not enforce this.
func (c *Coordinator) StartRun(key run.Key, send protocol.Sender, policy run.Policy) *Session {
	session := &Session{
		Key:       key,
		Policy:    policy,
		Send:      send,
		CreatedAt: time.Now(),
		stage:     newSlot[run.StageDecision](),
		assistant: newSlot[run.AssistantDecision](),
		tools:     make(map[string]*slot[run.ToolDecision]),
	}
	c.mu.Lock()
	c.runs[key] = session
	c.mu.Unlock()
	return session
}

// GetRun looks up the session for the key.
func (c *Coordinator) GetRun(key run.Key) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.runs[key]
	return s, ok
}

// EndRun removes the session for the key. Removing an absent run is not an
// error.
func (c *Coordinator) EndRun(key run.Key) {
	c.mu.Lock()
	delete(c.runs, key)
	c.mu.Unlock()
}

// ResolveStage delivers the stage decision. Returns false if there is no
// session for the key or the stage gate already resolved.
func (c *Coordinator) ResolveStage(key run.Key, decision run.StageDecision) bool {
	s, ok := c.GetRun(key)
	if !ok {
		return false
	}
	return s.stage.Resolve(decision)
}

// ResolveAssistant delivers the assistant decision. Returns false if there is
// no session for the key or the assistant gate already resolved.
func (c *Coordinator) ResolveAssistant(key run.Key, decision run.AssistantDecision) bool {
	s, ok := c.GetRun(key)
	if !ok {
		return false
	}
	return s.assistant.Resolve(decision)
}

// ResolveTool delivers a tool decision for the given tool-call id. Returns
// false if there is no session, no pending slot for that id, or the slot
// already resolved. A resolution arriving before anyone awaits the tool-call
// id finds no slot and is dropped; reviewer decisions follow a
// TOOL_CALL_PROPOSED event, so in practice the await comes first.
func (c *Coordinator) ResolveTool(key run.Key, toolCallID string, decision run.ToolDecision) bool {
	s, ok := c.GetRun(key)
	if !ok {
		return false
	}
	sl := s.toolSlot(toolCallID, false)
	if sl == nil {
		return false
	}
	return sl.Resolve(decision)
}

// AwaitToolDecision suspends until the decision for the tool-call id arrives
// or ctx is done. Returns not-ok immediately when there is no session for the
// key. The slot is created lazily if this await is the first party to touch
// the tool-call id.
func (c *Coordinator) AwaitToolDecision(ctx context.Context, key run.Key, toolCallID string) (run.ToolDecision, bool) {
	s, ok := c.GetRun(key)
	if !ok {
		return run.ToolDecision{}, false
	}
	return s.toolSlot(toolCallID, true).Await(ctx)
}
