// Package agent provides the HTTP client for the agent runtime. One run is a
// single POST whose response body is a newline-delimited JSON event stream.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/CoachGate/internal/port/agentstream"
	"github.com/Strob0t/CoachGate/internal/resilience"
)

// maxLineBytes bounds a single NDJSON line; context payloads can be large.
const maxLineBytes = 4 << 20

// Client implements agentstream.Producer against the agent runtime's
// /run_stream endpoint.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new agent client. The client timeout covers connection
// establishment only; the streaming body has no deadline beyond ctx.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			// No Timeout: it would cut long-running streams. ctx governs.
		},
	}
}

// SetBreaker attaches a circuit breaker to stream establishment.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Stream starts a run and returns a channel of ordered events. The channel is
// closed when the agent closes the stream or ctx is done.
func (c *Client) Stream(ctx context.Context, req agentstream.Request) (<-chan agentstream.Event, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	var resp *http.Response
	connect := func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/run_stream", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/x-ndjson")
		if c.secret != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.secret)
		}

		r, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		if r.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			_ = r.Body.Close()
			return fmt.Errorf("agent returned %d: %s", r.StatusCode, strings.TrimSpace(string(data)))
		}
		resp = r
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(ctx, connect)
	} else {
		err = connect(ctx)
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("agent temporarily unavailable: %w", err)
		}
		return nil, err
	}

	events := make(chan agentstream.Event)
	go c.readStream(ctx, resp.Body, events)
	return events, nil
}

// readStream decodes NDJSON lines until EOF and closes the channel. Lines that
// fail to decode are logged and skipped; the agent may interleave keepalives.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, events chan<- agentstream.Event) {
	defer close(events)
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev agentstream.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("agent stream: skipping undecodable line", "error", err)
			continue
		}
		if ev.Type == "" {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("agent stream read failed", "error", err)
		select {
		case events <- agentstream.Event{Type: agentstream.EventRunError, Message: "agent stream interrupted"}:
		case <-ctx.Done():
		}
	}
}

// Health checks whether the agent runtime is reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent health: status %d", resp.StatusCode)
	}
	return nil
}
