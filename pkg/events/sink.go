package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/metrics"
)

// Sink defines the interface for event destinations.
type Sink interface {
	// Write sends an event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Write(_ context.Context, event *Event) error {
	v := event.Violation
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", event.Timestamp),
		zap.Int("violation_id", v.ID),
		zap.Int("ticket_id", v.TicketID),
		zap.String("violation_type", v.ViolationType),
		zap.String("status", v.Status),
	}
	if v.DelayMinutes > 0 {
		fields = append(fields, zap.Int("delay_minutes", v.DelayMinutes))
	}
	if event.Tenant != "" {
		fields = append(fields, zap.String("tenant", event.Tenant))
	}
	if event.Escalation != nil {
		fields = append(fields,
			zap.Int("escalation_level", event.Escalation.Level),
			zap.String("escalate_to", event.Escalation.EscalateTo))
	}

	s.logger.Info("sla_violation_event", fields...)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

func (s *LogSink) Name() string {
	return "log"
}

// WebhookSink posts events as JSON to an HTTP endpoint.
type WebhookSink struct {
	name          string
	url           string
	httpClient    *http.Client
	headers       map[string]string
	logger        *zap.Logger
	eventsWritten atomic.Int64
	eventsFailed  atomic.Int64
}

type WebhookSinkConfig struct {
	Name    string
	URL     string
	Headers map[string]string
	// Timeout defaults to 5 seconds.
	Timeout time.Duration
}

func NewWebhookSink(cfg WebhookSinkConfig, logger *zap.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = "webhook"
	}

	sink := &WebhookSink{
		name:       name,
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		logger:     logger.Named("webhook-sink"),
	}

	sink.logger.Info("Webhook event sink created",
		zap.String("name", name),
		zap.String("url", cfg.URL),
		zap.Duration("timeout", timeout))

	return sink, nil
}

func (s *WebhookSink) Write(ctx context.Context, event *Event) error {
	err := s.post(ctx, event)
	if err != nil {
		s.eventsFailed.Add(1)
		metrics.EventSinkWrites.WithLabelValues(s.name, "error").Inc()
		s.logger.Debug("webhook request failed",
			zap.String("url", s.url),
			zap.String("event_id", event.ID),
			zap.Error(err))
		return err
	}
	s.eventsWritten.Add(1)
	metrics.EventSinkWrites.WithLabelValues(s.name, "success").Inc()
	return nil
}

func (s *WebhookSink) post(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(event.Type))
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event to %s: %w", s.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook %s returned status %d: %s", s.url, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

func (s *WebhookSink) Close() error {
	s.logger.Info("closing webhook sink",
		zap.String("name", s.name),
		zap.Int64("events_written", s.eventsWritten.Load()),
		zap.Int64("events_failed", s.eventsFailed.Load()))
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *WebhookSink) Name() string {
	return s.name
}

// MultiSink writes every event to all sinks. A failing sink does not stop
// delivery to the others; the failures are joined.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Write(ctx context.Context, event *Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Name() string {
	return "multi"
}

// Sinks returns the wrapped sinks.
func (m *MultiSink) Sinks() []Sink {
	return m.sinks
}
