package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/CoachGate/internal/port/agentstream"
	"github.com/Strob0t/CoachGate/internal/resilience"
)

func collectEvents(t *testing.T, ch <-chan agentstream.Event) []agentstream.Event {
	t.Helper()
	var out []agentstream.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestStreamDecodesNDJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run_stream" {
			http.NotFound(w, r)
			return
		}
		var req agentstream.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if req.Message != "hello" {
			http.Error(w, "wrong message", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"type":"TOOL_CALL_STARTED","toolCallId":"tc1","toolName":"profile_get"}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `not json, should be skipped`)
		fmt.Fprintln(w, `{"type":"TEXT_MESSAGE_CHUNK","role":"assistant","delta":"hi"}`)
		fmt.Fprintln(w, `{"type":"RUN_FINISHED"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	ch, err := client.Stream(context.Background(), agentstream.Request{
		UserID:   "u1",
		ThreadID: "t1",
		Message:  "hello",
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	events := collectEvents(t, ch)
	if len(events) != 3 {
		t.Fatalf("events = %v, want 3", events)
	}
	if events[0].Type != agentstream.EventToolCallStarted || events[0].ToolCallID != "tc1" {
		t.Fatalf("events[0] = %+v", events[0])
	}
	if events[1].Delta != "hi" {
		t.Fatalf("events[1] = %+v", events[1])
	}
	if events[2].Type != agentstream.EventRunFinished {
		t.Fatalf("events[2] = %+v", events[2])
	}
}

func TestStreamSendsBearerSecret(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprintln(w, `{"type":"RUN_FINISHED"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "s3cret")
	ch, err := client.Stream(context.Background(), agentstream.Request{Message: "x"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	collectEvents(t, ch)
}

func TestStreamNon200IsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "agent down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.Stream(context.Background(), agentstream.Request{Message: "x"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestStreamBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	client.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for range 2 {
		if _, err := client.Stream(context.Background(), agentstream.Request{Message: "x"}); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := client.Stream(context.Background(), agentstream.Request{Message: "x"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
