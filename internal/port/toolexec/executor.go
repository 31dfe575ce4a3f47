// Package toolexec defines the port for executing approved agent tools.
package toolexec

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnknownTool is returned for tool names the executor does not implement.
var ErrUnknownTool = errors.New("unknown tool")

// Executor runs one named tool on behalf of a user.
type Executor interface {
	// Execute runs the tool and returns its structured result.
	Execute(ctx context.Context, userID uuid.UUID, threadID, name string, args map[string]any) (map[string]any, error)
}
