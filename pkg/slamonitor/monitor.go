// Package slamonitor polls the SLA violation list, keeps the latest snapshot
// in memory and turns changes between polls into violation events.
package slamonitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/metrics"
	"github.com/telekom/itsmctl/pkg/telemetry"
)

const (
	DefaultInterval = 30 * time.Second
	// maxPages bounds a single poll when the backend keeps reporting more items.
	maxPages = 50
)

// Source is the part of the SLA API the monitor needs. *client.SLAService
// implements it.
type Source interface {
	ListViolations(ctx context.Context, opts client.ViolationListOptions) (*client.Page[client.SLAViolation], error)
	GetViolation(ctx context.Context, id int) (*client.SLAViolation, error)
}

// Escalator resolves the escalation level due for a violation. *escalation.Store
// implements it.
type Escalator interface {
	Due(serviceType string, severity client.Severity, elapsed time.Duration) (escalation.Rule, escalation.Level, bool)
}

type Monitor struct {
	Source   Source
	Interval time.Duration
	// Status is passed to the backend as the status query parameter.
	Status string
	Filter filter.ViolationFilter
	// Sink receives the opened and resolved events; nil discards them.
	Sink        events.Sink
	Escalations Escalator
	Tenant      string
	// EmitInitial emits opened events for the violations found by the first poll.
	EmitInitial bool
	Log         *zap.SugaredLogger
	Clock       func() time.Time

	pollMu sync.Mutex
	mu     sync.RWMutex
	snap   Snapshot
	known  map[int]client.SLAViolation
	seeded bool
}

// Snapshot is the state after the most recent poll.
type Snapshot struct {
	Violations  []client.SLAViolation `json:"violations"`
	Stats       filter.ViolationStats `json:"stats"`
	PolledAt    time.Time             `json:"polled_at"`
	LastSuccess time.Time             `json:"last_success"`
	LastError   string                `json:"last_error,omitempty"`
	Polls       int                   `json:"polls"`
	Failures    int                   `json:"failures"`
}

// Ready reports whether at least one poll succeeded.
func (s Snapshot) Ready() bool {
	return !s.LastSuccess.IsZero()
}

func (m *Monitor) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *Monitor) log() *zap.SugaredLogger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop().Sugar()
}

func (m *Monitor) interval() time.Duration {
	if m.Interval > 0 {
		return m.Interval
	}
	return DefaultInterval
}

// Run polls immediately and then on every tick until ctx is done. Poll
// failures are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	if m.Source == nil {
		return errors.New("violation source is required")
	}
	log := m.log()
	log.Infow("Starting SLA monitor", "interval", m.interval().String(), "status", m.Status, "emitInitial", m.EmitInitial)

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()
	for {
		if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Warnw("SLA poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			log.Info("SLA monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the current violations, updates the snapshot and emits the
// events for the differences to the previous poll. On error the previous
// snapshot is kept.
func (m *Monitor) Poll(ctx context.Context) error {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "sla.poll", attribute.String("sla.status", m.Status))
	defer span.End()

	start := time.Now()
	items, truncated, err := m.fetch(ctx)
	metrics.MonitorPollDuration.Observe(time.Since(start).Seconds())
	now := m.now()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list violations")
		metrics.MonitorPolls.WithLabelValues("error").Inc()
		m.mu.Lock()
		m.snap.PolledAt = now
		m.snap.LastError = err.Error()
		m.snap.Polls++
		m.snap.Failures++
		m.mu.Unlock()
		return err
	}
	metrics.MonitorPolls.WithLabelValues("success").Inc()
	if truncated {
		m.log().Warnw("Violation list truncated, skipping disappearance check",
			"pages", maxPages, "fetched", len(items))
	}

	items = m.Filter.Apply(items)
	stats := filter.CountViolations(items)
	metrics.Violations.WithLabelValues("open").Set(float64(stats.Open))
	metrics.Violations.WithLabelValues("resolved").Set(float64(stats.Resolved))
	metrics.Violations.WithLabelValues("critical").Set(float64(stats.Critical))
	span.SetAttributes(attribute.Int("sla.violations", stats.Total))

	m.mu.Lock()
	var emitted []*events.Event
	if m.seeded || m.EmitInitial {
		emitted = m.diff(m.known, items, !truncated, now)
	}
	known := make(map[int]client.SLAViolation, len(items))
	for _, v := range items {
		known[v.ID] = v
	}
	if truncated {
		// Unfetched ids stay known so the next full poll neither reopens
		// nor resolves them by accident.
		for id, v := range m.known {
			if _, ok := known[id]; !ok {
				known[id] = v
			}
		}
	}
	m.known = known
	m.seeded = true
	m.snap = Snapshot{
		Violations:  items,
		Stats:       stats,
		PolledAt:    now,
		LastSuccess: now,
		Polls:       m.snap.Polls + 1,
		Failures:    m.snap.Failures,
	}
	m.mu.Unlock()

	m.emit(ctx, emitted)
	return nil
}

// fetch reads the violation pages. truncated is set when maxPages was reached
// while the backend still reported more items.
func (m *Monitor) fetch(ctx context.Context) ([]client.SLAViolation, bool, error) {
	var out []client.SLAViolation
	for page := 1; page <= maxPages; page++ {
		resp, err := m.Source.ListViolations(ctx, client.ViolationListOptions{
			PageRequest: client.PageRequest{Page: page, PageSize: client.MaxPageSize},
			Status:      m.Status,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to list violations: %w", err)
		}
		out = append(out, resp.Items...)
		if len(resp.Items) == 0 || len(out) >= resp.Total {
			return out, false, nil
		}
	}
	return out, true, nil
}

// diff compares two polls by violation id. New unresolved ids open; ids that
// flipped to resolved resolve. When the poll was complete, unresolved ids
// that disappeared resolve as well.
func (m *Monitor) diff(prev map[int]client.SLAViolation, cur []client.SLAViolation, complete bool, now time.Time) []*events.Event {
	var out []*events.Event
	seen := make(map[int]struct{}, len(cur))
	for _, v := range cur {
		seen[v.ID] = struct{}{}
		old, existed := prev[v.ID]
		switch {
		case !existed && !v.Resolved():
			out = append(out, m.event(events.EventViolationOpened, v, now))
		case existed && !old.Resolved() && v.Resolved():
			out = append(out, m.event(events.EventViolationResolved, v, now))
		}
	}

	if !complete {
		return out
	}
	gone := make([]int, 0)
	for id, old := range prev {
		if _, ok := seen[id]; !ok && !old.Resolved() {
			gone = append(gone, id)
		}
	}
	slices.Sort(gone)
	for _, id := range gone {
		v := prev[id]
		v.Status = client.ViolationStatusResolved
		v.IsResolved = true
		out = append(out, m.event(events.EventViolationResolved, v, now))
	}
	return out
}

func (m *Monitor) event(typ events.EventType, v client.SLAViolation, now time.Time) *events.Event {
	e := events.NewEvent(typ, v, m.Tenant, now)
	if m.Escalations != nil && typ == events.EventViolationOpened {
		if _, level, ok := m.Escalations.Due("", v.Severity.Scale(), now.Sub(v.CreatedAt)); ok {
			e.Escalation = &level
		}
	}
	return e
}

func (m *Monitor) emit(ctx context.Context, evs []*events.Event) {
	for _, e := range evs {
		metrics.ViolationEvents.WithLabelValues(string(e.Type), string(e.Severity)).Inc()
		if m.Sink == nil {
			continue
		}
		if err := m.Sink.Write(ctx, e); err != nil {
			m.log().Errorw("Failed to deliver violation event",
				"event", e.Type, "violationId", e.Violation.ID, "sink", m.Sink.Name(), "error", err)
		}
	}
}

// Snapshot returns a copy of the state after the most recent poll.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snap
	s.Violations = slices.Clone(m.snap.Violations)
	return s
}

// Watch polls a single violation every interval until it is resolved and
// returns it. onUpdate, when set, sees the first state and every change of
// status, notes or delay.
func (m *Monitor) Watch(ctx context.Context, id int, onUpdate func(client.SLAViolation)) (*client.SLAViolation, error) {
	if m.Source == nil {
		return nil, errors.New("violation source is required")
	}
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	var last *client.SLAViolation
	for {
		v, err := m.Source.GetViolation(ctx, id)
		switch {
		case err != nil && ctx.Err() != nil:
			return last, ctx.Err()
		case err != nil:
			var httpErr *client.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
				return last, err
			}
			m.log().Warnw("Failed to fetch violation", "id", id, "error", err)
		default:
			if onUpdate != nil && (last == nil || changed(*last, *v)) {
				onUpdate(*v)
			}
			last = v
			if v.Resolved() {
				return v, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func changed(a, b client.SLAViolation) bool {
	return a.Status != b.Status || a.IsResolved != b.IsResolved || a.Notes != b.Notes || a.DelayMinutes != b.DelayMinutes || !a.UpdatedAt.Equal(b.UpdatedAt)
}
