// Package events publishes run summaries to NATS so operators can watch
// pipeline health without scraping logs. Publishing is optional; the noop
// publisher is used when events are not configured.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docsmith/internal/config"
)

// RunSummary is the payload published after every pipeline run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Outcome    string    `json:"outcome"` // success|warning|failed
	Stages     []string  `json:"stages"`
	Warnings   []string  `json:"warnings,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher emits run summaries.
type Publisher interface {
	PublishRunSummary(summary RunSummary) error
	Close()
}

// NoopPublisher drops all summaries.
type NoopPublisher struct{}

func (NoopPublisher) PublishRunSummary(RunSummary) error { return nil }
func (NoopPublisher) Close()                             {}

// NATSPublisher publishes run summaries to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS using the events configuration.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("events.url is required when events are enabled")
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "docsmith.runs"
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("docsmith"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	slog.Info("run-event publishing enabled", "url", cfg.URL, "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// PublishRunSummary sends the summary as JSON. Failures are returned, not
// fatal: the caller logs and moves on, a build must never fail on telemetry.
func (p *NATSPublisher) PublishRunSummary(summary RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return p.conn.Flush()
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
