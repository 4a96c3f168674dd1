// Package escalation keeps the escalation rule catalogue: which team is
// notified, and how, once an SLA violation has been open for a given time.
package escalation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive || s == StatusDraft
}

// NotificationMethods lists the channels a level may notify through.
var NotificationMethods = []string{"email", "sms", "phone", "chat", "webhook"}

type Level struct {
	Level              int      `yaml:"level" json:"level"`
	TimeThreshold      string   `yaml:"timeThreshold" json:"timeThreshold"`
	EscalateTo         string   `yaml:"escalateTo" json:"escalateTo"`
	NotificationMethod []string `yaml:"notificationMethod" json:"notificationMethod"`
	Action             string   `yaml:"action,omitempty" json:"action,omitempty"`
}

// Threshold returns the parsed TimeThreshold.
func (l Level) Threshold() (time.Duration, error) {
	d, err := time.ParseDuration(l.TimeThreshold)
	if err != nil {
		return 0, fmt.Errorf("level %d: invalid time threshold %q: %w", l.Level, l.TimeThreshold, err)
	}
	return d, nil
}

type Rule struct {
	ID               string          `yaml:"id" json:"id"`
	Name             string          `yaml:"name" json:"name"`
	Description      string          `yaml:"description,omitempty" json:"description,omitempty"`
	TriggerCondition string          `yaml:"triggerCondition,omitempty" json:"triggerCondition,omitempty"`
	Priority         client.Severity `yaml:"priority" json:"priority"`
	ServiceType      string          `yaml:"serviceType,omitempty" json:"serviceType,omitempty"`
	Levels           []Level         `yaml:"levels" json:"levels"`
	Status           Status          `yaml:"status" json:"status"`
	CreatedAt        time.Time       `yaml:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time       `yaml:"updatedAt" json:"updatedAt"`
	CreatedBy        string          `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`
}

func (r Rule) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if r.Priority != "" && !r.Priority.Valid() {
		errs = append(errs, fmt.Errorf("invalid priority %q", r.Priority))
	}
	if r.Status != "" && !r.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if len(r.Levels) == 0 {
		errs = append(errs, errors.New("at least one escalation level is required"))
	}
	var prev time.Duration
	for i, l := range r.Levels {
		if l.Level != i+1 {
			errs = append(errs, fmt.Errorf("level %d: levels must be numbered 1..%d in order", l.Level, len(r.Levels)))
		}
		d, err := l.Threshold()
		switch {
		case err != nil:
			errs = append(errs, err)
		case i > 0 && d <= prev:
			errs = append(errs, fmt.Errorf("level %d: time threshold %s must exceed the previous level", l.Level, l.TimeThreshold))
		}
		prev = d
		if l.EscalateTo == "" {
			errs = append(errs, fmt.Errorf("level %d: escalateTo is required", l.Level))
		}
		for _, m := range l.NotificationMethod {
			if !slices.Contains(NotificationMethods, m) {
				errs = append(errs, fmt.Errorf("level %d: unknown notification method %q", l.Level, m))
			}
		}
	}
	return errors.Join(errs...)
}

// Due returns the highest level whose threshold has elapsed. ok is false
// while the first threshold has not been reached.
func (r Rule) Due(elapsed time.Duration) (Level, bool) {
	var (
		due   Level
		found bool
	)
	for _, l := range r.Levels {
		d, err := l.Threshold()
		if err != nil || d > elapsed {
			break
		}
		due, found = l, true
	}
	return due, found
}

// Matches reports whether the rule applies to a violation of the given
// service type and severity. Empty rule fields match anything.
func (r Rule) Matches(serviceType string, severity client.Severity) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.ServiceType != "" && serviceType != "" && r.ServiceType != serviceType {
		return false
	}
	return r.Priority == "" || severity == "" || r.Priority == severity
}
