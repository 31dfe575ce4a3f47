// Package nats mirrors outbound run events to a NATS JetStream audit trail.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "COACHGATE"

// Trail implements trail.Publisher using NATS JetStream. Every outbound
// protocol event for a run is published to runs.<threadID>.<runID>.
type Trail struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the trail stream exists.
func Connect(ctx context.Context, url string) (*Trail, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"runs.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Trail{nc: nc, js: js}, nil
}

// Publish records one event under the run's subject. Publishing is
// fire-and-forget; failures are logged, never surfaced to the run.
func (t *Trail) Publish(ctx context.Context, threadID, runID string, data []byte) {
	subject := fmt.Sprintf("runs.%s.%s", sanitizeToken(threadID), sanitizeToken(runID))
	if _, err := t.js.Publish(ctx, subject, data); err != nil {
		slog.Warn("trail publish failed", "subject", subject, "error", err)
	}
}

// Close shuts down the NATS connection.
func (t *Trail) Close() error {
	t.nc.Close()
	return nil
}

// sanitizeToken replaces characters that would break NATS subject syntax.
func sanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	out := []byte(s)
	for i, c := range out {
		switch c {
		case '.', ' ', '*', '>':
			out[i] = '_'
		}
	}
	return string(out)
}
