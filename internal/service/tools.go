package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/domain/event"
	"github.com/Strob0t/CoachGate/internal/port/eventstore"
	"github.com/Strob0t/CoachGate/internal/port/toolexec"
)

// Tool names the agent may invoke.
const (
	ToolProfileGet    = "profile_get"
	ToolProfileSave   = "profile_save"
	ToolProfileDelete = "profile_delete"
)

// KnownTool reports whether name is a tool this service implements.
func KnownTool(name string) bool {
	switch name {
	case ToolProfileGet, ToolProfileSave, ToolProfileDelete:
		return true
	}
	return false
}

// ToolsService executes approved agent tools. It implements toolexec.Executor.
type ToolsService struct {
	events   eventstore.Store
	profiles *ProfilesService
}

// NewToolsService creates a ToolsService.
func NewToolsService(events eventstore.Store, profiles *ProfilesService) *ToolsService {
	return &ToolsService{events: events, profiles: profiles}
}

// Execute runs the named tool. Profile writes update the canonical store and
// append the matching domain event so the projection stays consistent.
func (s *ToolsService) Execute(ctx context.Context, userID uuid.UUID, threadID, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case ToolProfileGet:
		m, err := s.profiles.GetProfileMap(ctx, userID)
		if err != nil {
			return nil, err
		}
		var payload any
		if m != nil {
			payload = m
		}
		return map[string]any{"ok": true, "profile": payload}, nil

	case ToolProfileSave:
		payload, ok := args["profile"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: args.profile must be an object", ToolProfileSave)
		}
		stored, err := s.profiles.UpsertFromPayload(ctx, userID, payload)
		if err != nil {
			return nil, err
		}
		if err := s.events.Append(ctx, &event.Event{
			UserID:   userID,
			ThreadID: threadID,
			Type:     event.TypeProfileSaved,
			Payload:  stored,
		}); err != nil {
			return nil, fmt.Errorf("append ProfileSaved: %w", err)
		}
		return map[string]any{"ok": true, "profile": stored}, nil

	case ToolProfileDelete:
		if _, err := s.profiles.Delete(ctx, userID); err != nil {
			return nil, err
		}
		if err := s.events.Append(ctx, &event.Event{
			UserID:   userID,
			ThreadID: threadID,
			Type:     event.TypeProfileDeleted,
			Payload:  map[string]any{},
		}); err != nil {
			return nil, fmt.Errorf("append ProfileDeleted: %w", err)
		}
		return map[string]any{"ok": true}, nil
	}

	return nil, fmt.Errorf("%w: %s", toolexec.ErrUnknownTool, name)
}
