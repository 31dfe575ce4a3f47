package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/CoachGate/internal/domain/run"
)

// ErrMalformedEnvelope marks an inbound frame that cannot be a run request.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// runEnvelope is the raw inbound run-request shape. The message may be carried
// either directly or as the last entry of a messages array.
type runEnvelope struct {
	ThreadID       string          `json:"threadId"`
	RunID          string          `json:"runId"`
	ParentRunID    string          `json:"parentRunId"`
	Message        string          `json:"message"`
	Messages       []threadMessage `json:"messages"`
	ForwardedProps map[string]any  `json:"forwardedProps"`
}

type threadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParseRunRequest validates and decodes an inbound frame into a run request.
// It fails with an ErrMalformedEnvelope-wrapped error when the payload is not
// a JSON object, threadId or runId is missing, or no user message text is
// present.
func ParseRunRequest(raw []byte) (*run.Request, error) {
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedEnvelope)
	}

	threadID := strings.TrimSpace(env.ThreadID)
	runID := strings.TrimSpace(env.RunID)
	if threadID == "" {
		return nil, fmt.Errorf("%w: missing threadId", ErrMalformedEnvelope)
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: missing runId", ErrMalformedEnvelope)
	}

	message := strings.TrimSpace(env.Message)
	if message == "" && len(env.Messages) > 0 {
		last := env.Messages[len(env.Messages)-1]
		if last.Role != "user" {
			return nil, fmt.Errorf("%w: last message must have role \"user\"", ErrMalformedEnvelope)
		}
		message = strings.TrimSpace(last.Content)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message must be a non-empty string", ErrMalformedEnvelope)
	}

	return &run.Request{
		ThreadID:       threadID,
		RunID:          runID,
		ParentRunID:    strings.TrimSpace(env.ParentRunID),
		Message:        message,
		ForwardedProps: env.ForwardedProps,
	}, nil
}
