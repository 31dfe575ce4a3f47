// Package event defines the domain event entity and the state projection
// used to build agent context snapshots.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of domain event.
type Type string

const (
	TypeProfileSaved     Type = "ProfileSaved"
	TypeProfileDeleted   Type = "ProfileDeleted"
	TypePlanGenerated    Type = "PlanGenerated"
	TypeWorkoutStarted   Type = "WorkoutStarted"
	TypeSetLogged        Type = "SetLogged"
	TypeWorkoutCompleted Type = "WorkoutCompleted"
	TypeChatMessageSent  Type = "ChatMessageSent"

	// TypeUserOnboarded is the legacy alias for ProfileSaved kept for event
	// histories written before the rename.
	TypeUserOnboarded Type = "UserOnboarded"
)

// Event is a single immutable record in a user's event history.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"userId"`
	ThreadID  string         `json:"threadId,omitempty"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}
