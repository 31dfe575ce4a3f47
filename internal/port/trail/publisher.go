// Package trail defines the port for mirroring run protocol events to an
// external audit trail.
package trail

import "context"

// Publisher records outbound protocol events for a run. Publishing is
// best-effort; failures are logged by implementations, never surfaced to the
// run.
type Publisher interface {
	// Publish records one event under the given thread and run.
	Publish(ctx context.Context, threadID, runID string, data []byte)
}
