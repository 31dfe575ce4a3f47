package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/domain/event"
	"github.com/Strob0t/CoachGate/internal/port/eventstore"
)

// ChatService persists chat transcript events. Exactly one user message and at
// most one assistant message are written per run.
type ChatService struct {
	events eventstore.Store
}

// NewChatService creates a ChatService backed by the given event store.
func NewChatService(events eventstore.Store) *ChatService {
	return &ChatService{events: events}
}

// PersistUserMessage appends the inbound user message to the thread's history.
func (s *ChatService) PersistUserMessage(ctx context.Context, userID uuid.UUID, threadID, text string) error {
	if err := s.events.Append(ctx, &event.Event{
		UserID:   userID,
		ThreadID: threadID,
		Type:     event.TypeChatMessageSent,
		Payload:  map[string]any{"role": "user", "text": text},
	}); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	return nil
}

// PersistAssistantMessage appends the final assistant answer to the thread's
// history.
func (s *ChatService) PersistAssistantMessage(ctx context.Context, userID uuid.UUID, threadID, text string) error {
	if err := s.events.Append(ctx, &event.Event{
		UserID:   userID,
		ThreadID: threadID,
		Type:     event.TypeChatMessageSent,
		Payload:  map[string]any{"role": "assistant", "text": text},
	}); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	return nil
}
