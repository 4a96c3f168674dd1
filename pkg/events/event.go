package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

type EventType string

const (
	EventViolationOpened   EventType = "violation.opened"
	EventViolationResolved EventType = "violation.resolved"
)

// Event describes a change of an SLA violation as seen by the monitor.
type Event struct {
	ID        string                   `json:"id"`
	Type      EventType                `json:"type"`
	Timestamp time.Time                `json:"timestamp"`
	Tenant    string                   `json:"tenant,omitempty"`
	Severity  client.ViolationSeverity `json:"severity"`
	Violation client.SLAViolation      `json:"violation"`
	// Escalation is the level due for the violation age, if a rule matched.
	Escalation *escalation.Level `json:"escalation,omitempty"`
}

func NewEvent(typ EventType, v client.SLAViolation, tenant string, at time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: at.UTC(),
		Tenant:    tenant,
		Severity:  v.Severity,
		Violation: v,
	}
}

// Key identifies the violation the event belongs to.
func (e *Event) Key() string {
	return strconv.Itoa(e.Violation.ID)
}
