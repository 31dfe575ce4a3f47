package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/domain/event"
	"github.com/Strob0t/CoachGate/internal/domain/profile"
	"github.com/Strob0t/CoachGate/internal/port/agentstream"
	"github.com/Strob0t/CoachGate/internal/protocol"
)

// memEventStore is an in-memory append-only event store.
type memEventStore struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (s *memEventStore) Append(_ context.Context, ev *event.Event) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *ev
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	s.events = append(s.events, stored)
	return nil
}

func (s *memEventStore) ListByUserThread(_ context.Context, userID uuid.UUID, threadID string) ([]event.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, ev := range s.events {
		if ev.UserID == userID && ev.ThreadID == threadID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memEventStore) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// memProfileStore is an in-memory canonical profile store.
type memProfileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]profile.Profile
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: make(map[uuid.UUID]profile.Profile)}
}

func (s *memProfileStore) GetByUser(_ context.Context, userID uuid.UUID) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memProfileStore) UpsertByUser(_ context.Context, p profile.Profile) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return &p, nil
}

func (s *memProfileStore) DeleteByUser(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.profiles[userID]
	delete(s.profiles, userID)
	return ok, nil
}

// scriptedProducer replays a fixed event sequence as the agent stream.
type scriptedProducer struct {
	mu       sync.Mutex
	events   []agentstream.Event
	err      error
	lastReq  agentstream.Request
	streamed bool
}

func (p *scriptedProducer) Stream(_ context.Context, req agentstream.Request) (<-chan agentstream.Event, error) {
	p.mu.Lock()
	p.lastReq = req
	p.streamed = true
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan agentstream.Event, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProducer) request() agentstream.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

// eventSink records every outbound protocol event in order.
type eventSink struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (s *eventSink) sender() protocol.Sender {
	return func(_ context.Context, ev protocol.Event) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, ev)
		return nil
	}
}

func (s *eventSink) all() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) types() []protocol.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *eventSink) last(t protocol.EventType) (protocol.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == t {
			return s.events[i], true
		}
	}
	return protocol.Event{}, false
}

func (s *eventSink) count(t protocol.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
