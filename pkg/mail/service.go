package mail

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/events"
)

const queueStopTimeout = 30 * time.Second

type ServiceConfig struct {
	// DefaultRecipients receive alerts when no escalation level names an address.
	DefaultRecipients []string
	BrandingName      string
	// TicketURL is a fmt pattern with one %d verb for the ticket id,
	// e.g. "https://itsm.example.com/tickets/%d".
	TicketURL      string
	RetryCount     int
	RetryBackoffMs int
	QueueSize      int
}

// Service owns the mail queue and renders violation alerts into it.
type Service struct {
	cfg    ServiceConfig
	logger *zap.SugaredLogger
	now    func() time.Time

	mu    sync.RWMutex
	queue *Queue
}

func NewService(sender Sender, cfg ServiceConfig, logger *zap.SugaredLogger) *Service {
	if cfg.BrandingName == "" {
		cfg.BrandingName = "ITSM"
	}
	logger = logger.Named("mail-service")
	return &Service{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		queue:  NewQueue(sender, logger, cfg.RetryCount, cfg.RetryBackoffMs, cfg.QueueSize),
	}
}

func (s *Service) Start() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queue != nil {
		s.queue.Start()
	}
}

func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue != nil
}

// Enqueue adds an email to the queue. After Stop it is dropped.
func (s *Service) Enqueue(id string, recipients []string, subject, body string) error {
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()

	if queue == nil {
		s.logger.Warnw("Mail service stopped, dropping email", "id", id, "recipients", len(recipients))
		return nil
	}
	return queue.Enqueue(id, recipients, subject, body)
}

// Stop drains the queue. ctx bounds the wait; without a deadline it is capped
// at 30 seconds.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, queueStopTimeout)
		defer cancel()
	}
	s.logger.Info("Stopping mail service")
	err := s.queue.Stop(ctx)
	s.queue = nil
	return err
}

// Recipients picks the addresses for an event: the escalation target when it
// contains addresses and the level notifies by email, otherwise the defaults.
func (s *Service) Recipients(e *events.Event) []string {
	if l := e.Escalation; l != nil && (len(l.NotificationMethod) == 0 || slices.Contains(l.NotificationMethod, "email")) {
		if addrs := parseAddresses(l.EscalateTo); len(addrs) > 0 {
			return addrs
		}
	}
	return slices.Clone(s.cfg.DefaultRecipients)
}

func parseAddresses(list string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ';' }) {
		addr, err := mail.ParseAddress(strings.TrimSpace(part))
		if err == nil {
			out = append(out, addr.Address)
		}
	}
	return out
}

// Notify renders the alert for an event and queues it.
func (s *Service) Notify(e *events.Event) error {
	recipients := s.Recipients(e)
	if len(recipients) == 0 {
		s.logger.Debugw("No recipients for violation alert, skipping", "violationId", e.Violation.ID, "event", e.Type)
		return nil
	}

	subject := Subject(s.cfg.BrandingName, e)
	params := ViolationMailParams{
		Subject:      subject,
		Resolved:     e.Type == events.EventViolationResolved,
		Violation:    e.Violation,
		Escalation:   e.Escalation,
		Tenant:       e.Tenant,
		BrandingName: s.cfg.BrandingName,
		SentAt:       s.now().UTC(),
	}
	if s.cfg.TicketURL != "" {
		params.TicketURL = fmt.Sprintf(s.cfg.TicketURL, e.Violation.TicketID)
	}

	body, err := RenderViolation(params)
	if err != nil {
		return fmt.Errorf("failed to render violation mail: %w", err)
	}
	return s.Enqueue(e.ID, recipients, subject, body)
}

// AlertSink delivers violation events as emails through a Service.
type AlertSink struct {
	svc *Service
}

func NewAlertSink(svc *Service) *AlertSink {
	return &AlertSink{svc: svc}
}

func (a *AlertSink) Write(_ context.Context, e *events.Event) error {
	return a.svc.Notify(e)
}

// Close stops the underlying mail service.
func (a *AlertSink) Close() error {
	return a.svc.Stop(context.Background())
}

func (a *AlertSink) Name() string {
	return "mail"
}
