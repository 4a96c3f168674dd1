package mail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

func violationEvent(typ events.EventType) *events.Event {
	v := client.SLAViolation{
		ID:            42,
		TicketID:      1001,
		ViolationType: "response_time",
		Status:        client.ViolationStatusOpen,
		Severity:      client.ViolationSeverityCritical,
		DelayMinutes:  35,
		Description:   "First response <late>",
		ExpectedTime:  time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC),
	}
	return events.NewEvent(typ, v, "acme", time.Date(2026, 10, 1, 9, 5, 0, 0, time.UTC))
}

func newTestService(t *testing.T, sender Sender, cfg ServiceConfig) *Service {
	t.Helper()
	cfg.RetryBackoffMs = 10
	svc := NewService(sender, cfg, zap.NewNop().Sugar())
	svc.now = func() time.Time { return time.Date(2026, 10, 1, 9, 6, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	return svc
}

func TestRecipients(t *testing.T) {
	svc := newTestService(t, &mockSender{}, ServiceConfig{DefaultRecipients: []string{"sla-team@example.com"}})

	tests := []struct {
		name  string
		level *escalation.Level
		want  []string
	}{
		{"no escalation", nil, []string{"sla-team@example.com"}},
		{"email level", &escalation.Level{EscalateTo: "lead@example.com, Manager <mgr@example.com>", NotificationMethod: []string{"email", "sms"}}, []string{"lead@example.com", "mgr@example.com"}},
		{"no methods means email", &escalation.Level{EscalateTo: "lead@example.com"}, []string{"lead@example.com"}},
		{"sms only", &escalation.Level{EscalateTo: "lead@example.com", NotificationMethod: []string{"sms"}}, []string{"sla-team@example.com"}},
		{"role name", &escalation.Level{EscalateTo: "it-manager", NotificationMethod: []string{"email"}}, []string{"sla-team@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := violationEvent(events.EventViolationOpened)
			e.Escalation = tt.level
			assert.Equal(t, tt.want, svc.Recipients(e))
		})
	}
}

func TestRenderViolation(t *testing.T) {
	e := violationEvent(events.EventViolationOpened)
	e.Escalation = &escalation.Level{Level: 2, EscalateTo: "lead@example.com", Action: "page"}

	body, err := RenderViolation(ViolationMailParams{
		Subject:      Subject("ITSM", e),
		Violation:    e.Violation,
		Escalation:   e.Escalation,
		Tenant:       "acme",
		TicketURL:    "https://itsm.example.com/tickets/1001",
		BrandingName: "ITSM",
		SentAt:       time.Date(2026, 10, 1, 9, 6, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, body, "SLA violation #42 opened")
	assert.Contains(t, body, `<a href="https://itsm.example.com/tickets/1001">#1001</a>`)
	assert.Contains(t, body, "Response Time")
	assert.Contains(t, body, "CRITICAL")
	assert.Contains(t, body, "35 min")
	assert.Contains(t, body, "2026-10-01 08:30 UTC")
	assert.Contains(t, body, "First response &lt;late&gt;")
	assert.Contains(t, body, "Level 2 to lead@example.com (page)")
	assert.Contains(t, body, "acme")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "[ITSM] SLA violation #42 opened: response time (CRITICAL)", Subject("ITSM", violationEvent(events.EventViolationOpened)))
	assert.Equal(t, "[Ops] SLA violation #42 resolved: response time (CRITICAL)", Subject("Ops", violationEvent(events.EventViolationResolved)))
}

func TestAlertSinkQueuesMail(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender, ServiceConfig{
		DefaultRecipients: []string{"sla-team@example.com"},
		TicketURL:         "https://itsm.example.com/tickets/%d",
	})
	svc.Start()
	sink := NewAlertSink(svc)
	assert.Equal(t, "mail", sink.Name())

	require.NoError(t, sink.Write(context.Background(), violationEvent(events.EventViolationResolved)))
	require.Eventually(t, func() bool { return len(sender.sentMails()) == 1 }, 2*time.Second, 10*time.Millisecond)

	m := sender.sentMails()[0]
	assert.Equal(t, []string{"sla-team@example.com"}, m.Receivers)
	assert.Equal(t, "[ITSM] SLA violation #42 resolved: response time (CRITICAL)", m.Subject)
	assert.Contains(t, m.Body, "https://itsm.example.com/tickets/1001")

	require.NoError(t, sink.Close())
	assert.False(t, svc.IsEnabled())
	assert.NoError(t, sink.Write(context.Background(), violationEvent(events.EventViolationOpened)), "writes after close are dropped")
}

func TestAlertSinkSkipsWithoutRecipients(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender, ServiceConfig{})
	svc.Start()

	require.NoError(t, NewAlertSink(svc).Write(context.Background(), violationEvent(events.EventViolationOpened)))
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, sender.attemptCount())
}
