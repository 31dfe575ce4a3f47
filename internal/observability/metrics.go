// Package observability provides OpenTelemetry instruments and HTTP tracing
// middleware for CoachGate.
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "coachgate"

// Metrics holds all CoachGate metric instruments.
type Metrics struct {
	WSMessages        metric.Int64Counter
	RunsStarted       metric.Int64Counter
	RunsCompleted     metric.Int64Counter
	RunsFailed        metric.Int64Counter
	ToolCallsProposed metric.Int64Counter
	RunDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WSMessages, err = meter.Int64Counter("coachgate.ws.messages",
		metric.WithDescription("Inbound websocket frames processed"))
	if err != nil {
		return nil, err
	}

	m.RunsStarted, err = meter.Int64Counter("coachgate.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("coachgate.runs.completed",
		metric.WithDescription("Number of runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("coachgate.runs.failed",
		metric.WithDescription("Number of runs failed"))
	if err != nil {
		return nil, err
	}

	m.ToolCallsProposed, err = meter.Int64Counter("coachgate.toolcalls.proposed",
		metric.WithDescription("Tool calls proposed for review"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("coachgate.run.duration_seconds",
		metric.WithDescription("Agent run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
