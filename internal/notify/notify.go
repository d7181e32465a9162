// Package notify publishes run completion events so downstream automation
// (dashboards, chat bots, dependent pipelines) can react to mirror runs
// without polling the history store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.skarv.dev/infra/gitmirror/internal/config"
)

// RunEvent is the payload published after every completed mirror run.
type RunEvent struct {
	RunID        string    `json:"run_id"`
	Outcome      string    `json:"outcome"`
	CommitSHA    string    `json:"commit_sha,omitempty"`
	FilesAdded   int       `json:"files_added"`
	FilesUpdated int       `json:"files_updated"`
	FilesDeleted int       `json:"files_deleted"`
	DurationMS   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers run events. Implementations must tolerate being
// called from the run loop: a slow or dead broker must not fail a run.
type Publisher interface {
	PublishRun(ctx context.Context, event *RunEvent) error
	Close() error
}

// NATSPublisher publishes run events to a JetStream subject.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to NATS and prepares a JetStream context.
// Returns (nil, nil) when notifications are not configured or disabled so
// callers can treat the publisher as optional.
func NewNATSPublisher(cfg *config.NotifyConfig) (*NATSPublisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS publisher initialized",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.Subject))

	return &NATSPublisher{conn: conn, js: js, subject: cfg.Subject}, nil
}

// PublishRun publishes a run event to the configured subject.
func (p *NATSPublisher) PublishRun(ctx context.Context, event *RunEvent) error {
	if p == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published run event",
		slog.String("run_id", event.RunID),
		slog.String("outcome", event.Outcome))
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
	return nil
}
