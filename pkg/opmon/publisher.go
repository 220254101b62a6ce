package opmon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Publisher delivers collected snapshots to a monitoring backend.
type Publisher interface {
	// Name returns the publisher identifier for logging and metrics labels.
	Name() string

	// Publish delivers a batch of snapshots taken at the same tick.
	Publish(ctx context.Context, batch []Snapshot) error

	// Close performs graceful shutdown.
	Close() error
}

// PublishFunc adapts a function to the Publisher interface.
type PublishFunc func(ctx context.Context, batch []Snapshot) error

func (f PublishFunc) Name() string { return "func" }

func (f PublishFunc) Publish(ctx context.Context, batch []Snapshot) error {
	return f(ctx, batch)
}

func (f PublishFunc) Close() error { return nil }

// LogPublisher writes one structured log record per snapshot.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher builds a publisher that emits snapshots at info level.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(_ context.Context, batch []Snapshot) error {
	for _, s := range batch {
		p.log.Info().
			Str("module", s.Module).
			Str("session", s.Session).
			Int64("total_amount", s.TotalAmount).
			Int64("amount_since_last_call", s.AmountSinceLastCall).
			Msg("opmon")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// HTTPPusher POSTs snapshot batches as JSON to a fixed endpoint.
type HTTPPusher struct {
	url    string
	client *http.Client
}

// NewHTTPPusher builds an HTTP push publisher. A nil client falls back to
// http.DefaultClient.
func NewHTTPPusher(url string, client *http.Client) *HTTPPusher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPusher{url: url, client: client}
}

func (p *HTTPPusher) Name() string { return "http" }

func (p *HTTPPusher) Publish(ctx context.Context, batch []Snapshot) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("opmon: marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("opmon: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("opmon: push: %w", err)
	}
	// Drain so the transport can reuse the connection.
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("opmon: push failed: http %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPPusher) Close() error { return nil }
