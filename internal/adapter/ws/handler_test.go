package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/audit"
	"github.com/Strob0t/CoachGate/internal/domain/event"
	"github.com/Strob0t/CoachGate/internal/domain/profile"
	"github.com/Strob0t/CoachGate/internal/domain/run"
	"github.com/Strob0t/CoachGate/internal/port/agentstream"
	"github.com/Strob0t/CoachGate/internal/port/tokenstore"
	"github.com/Strob0t/CoachGate/internal/protocol"
	"github.com/Strob0t/CoachGate/internal/service"
)

type fakeTokens struct {
	token  string
	userID uuid.UUID
}

func (f *fakeTokens) UserForToken(_ context.Context, token string) (uuid.UUID, error) {
	if token == f.token {
		return f.userID, nil
	}
	return uuid.Nil, tokenstore.ErrUnknownToken
}

type nullEventStore struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *nullEventStore) Append(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *nullEventStore) ListByUserThread(context.Context, uuid.UUID, string) ([]event.Event, error) {
	return nil, nil
}

type nullProfileStore struct{}

func (nullProfileStore) GetByUser(context.Context, uuid.UUID) (*profile.Profile, error) {
	return nil, nil
}

func (nullProfileStore) UpsertByUser(_ context.Context, p profile.Profile) (*profile.Profile, error) {
	return &p, nil
}

func (nullProfileStore) DeleteByUser(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

type scriptedProducer struct {
	events []agentstream.Event
}

func (p *scriptedProducer) Stream(context.Context, agentstream.Request) (<-chan agentstream.Event, error) {
	ch := make(chan agentstream.Event, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// blockingProducer holds every stream open until released.
type blockingProducer struct {
	release chan struct{}
	mu      sync.Mutex
	streams int
}

func (p *blockingProducer) Stream(context.Context, agentstream.Request) (<-chan agentstream.Event, error) {
	p.mu.Lock()
	p.streams++
	p.mu.Unlock()
	ch := make(chan agentstream.Event)
	go func() {
		<-p.release
		close(ch)
	}()
	return ch, nil
}

func (p *blockingProducer) streamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams
}

func newTestHandler(producer agentstream.Producer, userID uuid.UUID) (*Handler, *audit.Coordinator) {
	coord := audit.NewCoordinator()
	events := &nullEventStore{}
	profiles := service.NewProfilesService(nullProfileStore{}, nil, 0)
	runs := service.NewRunService(coord, producer, events, profiles, service.NewChatService(events), nil, 10)
	return NewHandler(&fakeTokens{token: "tok", userID: userID}, coord, runs, nil, nil), coord
}

func TestRunHandleFinished(t *testing.T) {
	t.Parallel()

	var h *runHandle
	if !h.finished() {
		t.Fatal("nil handle must read as finished")
	}

	h = &runHandle{runID: "r1", done: make(chan struct{})}
	if h.finished() {
		t.Fatal("open handle must read as unfinished")
	}
	close(h.done)
	if !h.finished() {
		t.Fatal("closed handle must read as finished")
	}
}

func TestResolveRoutesStageDecision(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	h, coord := newTestHandler(&scriptedProducer{}, userID)
	key := run.Key{UserID: userID, ThreadID: "t1", RunID: "r1"}
	session := coord.StartRun(key, func(context.Context, protocol.Event) error { return nil }, run.Policy{})

	c := &conn{userID: userID}
	h.resolve(c, &protocol.Decision{
		Type:         protocol.DecisionStageApproved,
		ThreadID:     "t1",
		RunID:        "r1",
		PayloadEdits: map[string]any{"message": "edited"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	decision, ok := session.AwaitStage(ctx)
	if !ok || !decision.Approved {
		t.Fatalf("stage decision = %+v, ok=%v", decision, ok)
	}
	if decision.PayloadEdits["message"] != "edited" {
		t.Fatalf("payload edits = %v", decision.PayloadEdits)
	}
}

func TestResolveRoutesToolDecision(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	h, coord := newTestHandler(&scriptedProducer{}, userID)
	key := run.Key{UserID: userID, ThreadID: "t1", RunID: "r1"}
	coord.StartRun(key, func(context.Context, protocol.Event) error { return nil }, run.Policy{})

	type await struct {
		decision run.ToolDecision
		ok       bool
	}
	results := make(chan await, 1)
	go func() {
		d, ok := coord.AwaitToolDecision(context.Background(), key, "tc1")
		results <- await{d, ok}
	}()

	// Let the await create the slot before resolving.
	time.Sleep(10 * time.Millisecond)
	c := &conn{userID: userID}
	h.resolve(c, &protocol.Decision{
		Type:       protocol.DecisionToolDenied,
		ThreadID:   "t1",
		RunID:      "r1",
		ToolCallID: "tc1",
		Reason:     "nope",
	})

	res := <-results
	if !res.ok || res.decision.Approved || res.decision.Reason != "nope" {
		t.Fatalf("tool decision = %+v, ok=%v", res.decision, res.ok)
	}
}

func TestResolveDropsToolDecisionWithoutCallID(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	h, coord := newTestHandler(&scriptedProducer{}, userID)
	key := run.Key{UserID: userID, ThreadID: "t1", RunID: "r1"}
	session := coord.StartRun(key, func(context.Context, protocol.Event) error { return nil }, run.Policy{})

	c := &conn{userID: userID}
	h.resolve(c, &protocol.Decision{
		Type:     protocol.DecisionToolApproved,
		ThreadID: "t1",
		RunID:    "r1",
	})

	// Nothing to observe directly beyond the absence of a slot resolution;
	// stage and assistant gates must stay open.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := session.AwaitStage(ctx); ok {
		t.Fatal("stage gate resolved by a tool decision")
	}
}

func TestResolveUnknownRunIsSilent(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	h, _ := newTestHandler(&scriptedProducer{}, userID)
	c := &conn{userID: userID}

	// Must not panic or emit anything.
	h.resolve(c, &protocol.Decision{
		Type:     protocol.DecisionAssistantApproved,
		ThreadID: "t9",
		RunID:    "r9",
	})
}

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
	sock, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return sock
}

func readEvent(t *testing.T, sock *websocket.Conn) protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := sock.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev protocol.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return ev
}

func TestConnectionRejectsBadToken(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(&scriptedProducer{}, uuid.New())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	sock := dialWS(t, server, "token=wrong")
	defer sock.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := sock.Read(ctx)
	if websocket.CloseStatus(err) != StatusUnauthorized {
		t.Fatalf("close status = %v, want %v", websocket.CloseStatus(err), StatusUnauthorized)
	}
}

func TestConnectionRunRoundTrip(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{events: []agentstream.Event{
		{Type: agentstream.EventTextMessageChunk, Role: "assistant", Delta: "pong"},
		{Type: agentstream.EventRunFinished},
	}}
	h, _ := newTestHandler(producer, uuid.New())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	sock := dialWS(t, server, "token=tok")
	defer sock.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame := `{"threadId":"t1","runId":"r1","message":"ping"}`
	if err := sock.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if ev := readEvent(t, sock); ev.Type != protocol.EventRunStarted {
		t.Fatalf("first event = %s, want RUN_STARTED", ev.Type)
	}
	chunk := readEvent(t, sock)
	if chunk.Type != protocol.EventTextMessageChunk || chunk.Delta != "pong" {
		t.Fatalf("second event = %+v", chunk)
	}
	if ev := readEvent(t, sock); ev.Type != protocol.EventRunFinished {
		t.Fatalf("third event = %s, want RUN_FINISHED", ev.Type)
	}
}

func TestConnectionRejectsSecondRunWhileActive(t *testing.T) {
	t.Parallel()

	producer := &blockingProducer{release: make(chan struct{})}
	h, _ := newTestHandler(producer, uuid.New())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	sock := dialWS(t, server, "token=tok")
	defer sock.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first := `{"threadId":"t1","runId":"r1","message":"ping"}`
	if err := sock.Write(ctx, websocket.MessageText, []byte(first)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, sock); ev.Type != protocol.EventRunStarted {
		t.Fatalf("first event = %s, want RUN_STARTED", ev.Type)
	}

	second := `{"threadId":"t1","runId":"r2","message":"again"}`
	if err := sock.Write(ctx, websocket.MessageText, []byte(second)); err != nil {
		t.Fatalf("write: %v", err)
	}
	rejection := readEvent(t, sock)
	if rejection.Type != protocol.EventRunError || rejection.RunID != "r2" {
		t.Fatalf("rejection = %+v, want RUN_ERROR for r2", rejection)
	}
	if !strings.Contains(rejection.Message, "already active") {
		t.Fatalf("message = %q", rejection.Message)
	}

	// The first run is untouched: it finishes normally once the stream ends.
	close(producer.release)
	final := readEvent(t, sock)
	if final.Type != protocol.EventRunFinished || final.RunID != "r1" {
		t.Fatalf("final = %+v, want RUN_FINISHED for r1", final)
	}
	if n := producer.streamCount(); n != 1 {
		t.Fatalf("producer streams = %d, want 1", n)
	}
}

func TestConnectionTeardownLeavesStagedRunBlocked(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	h, coord := newTestHandler(&scriptedProducer{events: []agentstream.Event{
		{Type: agentstream.EventTextMessageChunk, Role: "assistant", Delta: "draft"},
		{Type: agentstream.EventRunFinished},
	}}, userID)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	sock := dialWS(t, server, "token=tok&mode=audit")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame := `{"threadId":"t1","runId":"r1","message":"ping"}`
	if err := sock.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, sock); ev.Type != protocol.EventRunStaged {
		t.Fatalf("first event = %s, want RUN_STAGED", ev.Type)
	}

	// No decision arrives: nothing past RUN_STAGED may be emitted.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer shortCancel()
	if _, data, err := sock.Read(shortCtx); err == nil {
		t.Fatalf("unexpected event past RUN_STAGED: %s", data)
	}

	// Teardown must not cancel the run: the session stays registered and the
	// blocked goroutine survives.
	_ = sock.Close(websocket.StatusNormalClosure, "")
	key := run.Key{UserID: userID, ThreadID: "t1", RunID: "r1"}
	time.Sleep(100 * time.Millisecond)
	if _, ok := coord.GetRun(key); !ok {
		t.Fatal("session released by connection teardown")
	}

	// A late denial still drives the run to completion and releases it.
	if !coord.ResolveStage(key, run.StageDecision{Reason: "too late"}) {
		t.Fatal("stage gate no longer resolvable")
	}
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := coord.GetRun(key); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run did not finish after the late decision")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestConnectionDrainsBackToBackFrames(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(&scriptedProducer{}, uuid.New())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	sock := dialWS(t, server, "token=tok")
	defer sock.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	const frames = 5
	for range frames {
		if err := sock.Write(ctx, websocket.MessageText, []byte(`{"threadId":"t1"}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i := range frames {
		if ev := readEvent(t, sock); ev.Type != protocol.EventRunError {
			t.Fatalf("event %d = %+v, want RUN_ERROR", i, ev)
		}
	}
}

func TestConnectionRejectsMalformedFrame(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(&scriptedProducer{}, uuid.New())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	sock := dialWS(t, server, "token=tok")
	defer sock.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sock.Write(ctx, websocket.MessageText, []byte(`{"threadId":"t1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := readEvent(t, sock)
	if ev.Type != protocol.EventRunError {
		t.Fatalf("event = %+v, want RUN_ERROR", ev)
	}
}
