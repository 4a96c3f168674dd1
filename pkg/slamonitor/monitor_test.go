package slamonitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

type fakeSource struct {
	mu    sync.Mutex
	polls [][]client.SLAViolation
	err   error
	calls int
	opts  []client.ViolationListOptions
}

func (f *fakeSource) ListViolations(_ context.Context, opts client.ViolationListOptions) (*client.Page[client.SLAViolation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	idx := min(f.calls, len(f.polls)-1)
	f.calls++
	items := f.polls[idx]
	return &client.Page[client.SLAViolation]{Items: items, Total: len(items), Page: 1, PageSize: client.MaxPageSize}, nil
}

func (f *fakeSource) GetViolation(ctx context.Context, id int) (*client.SLAViolation, error) {
	page, err := f.ListViolations(ctx, client.ViolationListOptions{})
	if err != nil {
		return nil, err
	}
	for i := range page.Items {
		if page.Items[i].ID == id {
			return &page.Items[i], nil
		}
	}
	return nil, &client.HTTPError{StatusCode: http.StatusNotFound, Message: "not found"}
}

type recordingSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (s *recordingSink) Write(_ context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}
func (s *recordingSink) Close() error { return nil }
func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) summary() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, string(e.Type)+":"+e.Key())
	}
	return out
}

func v(id int, status string, sev client.ViolationSeverity) client.SLAViolation {
	return client.SLAViolation{
		ID:        id,
		TicketID:  1000 + id,
		Status:    status,
		Severity:  sev,
		CreatedAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}
}

var fixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func newMonitor(src Source, sink events.Sink) *Monitor {
	return &Monitor{Source: src, Sink: sink, Tenant: "acme", Clock: func() time.Time { return fixedNow }}
}

func TestPollDiff(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{
		{v(1, "open", "high"), v(2, "open", "low")},
		{v(2, "open", "low"), v(1, "open", "high")},
		{v(1, "resolved", "high"), v(3, "open", "critical"), v(4, "resolved", "low")},
		{v(3, "open", "critical")},
	}}
	sink := &recordingSink{}
	m := newMonitor(src, sink)
	ctx := context.Background()

	require.NoError(t, m.Poll(ctx))
	assert.Empty(t, sink.summary(), "the first poll only seeds the snapshot")

	require.NoError(t, m.Poll(ctx))
	assert.Empty(t, sink.summary(), "reordering emits nothing")

	require.NoError(t, m.Poll(ctx))
	assert.Equal(t, []string{"violation.resolved:1", "violation.opened:3", "violation.resolved:2"}, sink.summary())

	require.NoError(t, m.Poll(ctx))
	assert.Equal(t, []string{"violation.resolved:1", "violation.opened:3", "violation.resolved:2"}, sink.summary(),
		"a resolved violation that disappears is not resolved twice")

	snap := m.Snapshot()
	assert.Len(t, snap.Violations, 1)
	assert.Equal(t, 4, snap.Polls)
	assert.True(t, snap.Ready())
	assert.Equal(t, fixedNow, snap.LastSuccess)
}

func TestPollEmitInitial(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{v(1, "open", "high"), v(2, "resolved", "low")}}}
	sink := &recordingSink{}
	m := newMonitor(src, sink)
	m.EmitInitial = true

	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, []string{"violation.opened:1"}, sink.summary())
	assert.Equal(t, "acme", sink.events[0].Tenant)
}

func TestPollFailureKeepsSnapshot(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{v(1, "open", "high")}}}
	m := newMonitor(src, nil)
	ctx := context.Background()

	require.NoError(t, m.Poll(ctx))
	src.err = errors.New("backend down")
	require.Error(t, m.Poll(ctx))

	snap := m.Snapshot()
	assert.Len(t, snap.Violations, 1)
	assert.Contains(t, snap.LastError, "backend down")
	assert.Equal(t, 1, snap.Failures)
	assert.True(t, snap.Ready())
}

func TestPollAppliesFilterAndStatus(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{v(1, "open", "critical"), v(2, "open", "low")}}}
	m := newMonitor(src, nil)
	m.Status = "open"
	m.Filter = filter.ViolationFilter{Severity: "critical"}

	require.NoError(t, m.Poll(context.Background()))
	snap := m.Snapshot()
	require.Len(t, snap.Violations, 1)
	assert.Equal(t, filter.ViolationStats{Total: 1, Open: 1, Critical: 1}, snap.Stats)
	assert.Equal(t, "open", src.opts[0].Status)
	assert.Equal(t, client.MaxPageSize, src.opts[0].PageSize)
}

type pagedSource struct {
	fakeSource
	pages map[int][]client.SLAViolation
	total int
}

func (p *pagedSource) ListViolations(_ context.Context, opts client.ViolationListOptions) (*client.Page[client.SLAViolation], error) {
	return &client.Page[client.SLAViolation]{Items: p.pages[opts.Page], Total: p.total, Page: opts.Page}, nil
}

func TestPollFetchesAllPages(t *testing.T) {
	src := &pagedSource{total: 3, pages: map[int][]client.SLAViolation{
		1: {v(1, "open", "low"), v(2, "open", "low")},
		2: {v(3, "open", "low")},
	}}
	m := newMonitor(src, nil)
	require.NoError(t, m.Poll(context.Background()))
	assert.Len(t, m.Snapshot().Violations, 3)
}

// endlessSource reports more violations than a poll may read once endless is
// set, and the seed violations otherwise.
type endlessSource struct {
	fakeSource
	seed    []client.SLAViolation
	endless bool
}

func (e *endlessSource) ListViolations(_ context.Context, opts client.ViolationListOptions) (*client.Page[client.SLAViolation], error) {
	if !e.endless {
		return &client.Page[client.SLAViolation]{Items: e.seed, Total: len(e.seed), Page: opts.Page}, nil
	}
	items := make([]client.SLAViolation, 0, opts.PageSize)
	for i := range opts.PageSize {
		items = append(items, v(10000+(opts.Page-1)*opts.PageSize+i, "open", "low"))
	}
	return &client.Page[client.SLAViolation]{Items: items, Total: 1 << 30, Page: opts.Page}, nil
}

func (s *recordingSink) take() []*events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func TestPollTruncatedKeepsUnfetchedViolations(t *testing.T) {
	src := &endlessSource{seed: []client.SLAViolation{v(1, "open", "high"), v(2, "open", "low"), v(3, "open", "low")}}
	sink := &recordingSink{}
	m := newMonitor(src, sink)
	ctx := context.Background()

	require.NoError(t, m.Poll(ctx))
	assert.Empty(t, sink.take())

	src.endless = true
	require.NoError(t, m.Poll(ctx))
	evs := sink.take()
	assert.Len(t, evs, maxPages*client.MaxPageSize)
	for _, e := range evs {
		assert.Equal(t, events.EventViolationOpened, e.Type)
		assert.GreaterOrEqual(t, e.Violation.ID, 10000)
	}

	src.endless = false
	require.NoError(t, m.Poll(ctx))
	for _, e := range sink.take() {
		assert.GreaterOrEqual(t, e.Violation.ID, 10000, "seed violations neither reopen nor resolve")
		assert.Equal(t, events.EventViolationResolved, e.Type)
	}
}

func TestPollResolvedByFlag(t *testing.T) {
	flagged := v(1, "open", "high")
	flagged.IsResolved = true
	src := &fakeSource{polls: [][]client.SLAViolation{
		{v(1, "open", "high")},
		{flagged},
	}}
	sink := &recordingSink{}
	m := newMonitor(src, sink)

	require.NoError(t, m.Poll(context.Background()))
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, []string{string(events.EventViolationResolved) + ":1"}, sink.summary())
	assert.Equal(t, 1, m.Snapshot().Stats.Resolved)
}

type fixedEscalator struct{}

func (fixedEscalator) Due(_ string, sev client.Severity, elapsed time.Duration) (escalation.Rule, escalation.Level, bool) {
	if sev != client.SeverityP1 || elapsed < 30*time.Minute {
		return escalation.Rule{}, escalation.Level{}, false
	}
	return escalation.Rule{ID: "ESC-001"}, escalation.Level{Level: 1, EscalateTo: "oncall@example.com"}, true
}

func TestEventsCarryEscalation(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{v(1, "open", "critical"), v(2, "open", "low")}}}
	sink := &recordingSink{}
	m := newMonitor(src, sink)
	m.EmitInitial = true
	m.Escalations = fixedEscalator{}

	require.NoError(t, m.Poll(context.Background()))
	require.Len(t, sink.events, 2)
	require.NotNil(t, sink.events[0].Escalation)
	assert.Equal(t, "oncall@example.com", sink.events[0].Escalation.EscalateTo)
	assert.Nil(t, sink.events[1].Escalation)
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{v(1, "open", "low")}}}
	m := newMonitor(src, nil)
	m.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Snapshot().Polls >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRequiresSource(t *testing.T) {
	assert.Error(t, (&Monitor{}).Run(context.Background()))
}

func TestWatchUntilResolved(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{
		{v(7, "open", "high")},
		{v(7, "open", "high")},
		{v(7, "resolved", "high")},
	}}
	m := newMonitor(src, nil)
	m.Interval = time.Millisecond

	var seen []string
	got, err := m.Watch(context.Background(), 7, func(v client.SLAViolation) { seen = append(seen, v.Status) })
	require.NoError(t, err)
	assert.True(t, got.Resolved())
	assert.Equal(t, []string{"open", "resolved"}, seen)
}

func TestWatchEndsOnResolvedFlag(t *testing.T) {
	flagged := v(7, "open", "high")
	flagged.IsResolved = true
	src := &fakeSource{polls: [][]client.SLAViolation{
		{v(7, "open", "high")},
		{flagged},
	}}
	m := newMonitor(src, nil)
	m.Interval = time.Millisecond

	updates := 0
	got, err := m.Watch(context.Background(), 7, func(client.SLAViolation) { updates++ })
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, 2, updates)
}

func TestWatchNotFound(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{}}}
	m := newMonitor(src, nil)

	_, err := m.Watch(context.Background(), 99, nil)
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestWatchCancelled(t *testing.T) {
	src := &fakeSource{polls: [][]client.SLAViolation{{v(7, "open", "high")}}}
	m := newMonitor(src, nil)
	m.Interval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	last, err := m.Watch(ctx, 7, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, last)
	assert.Equal(t, "open", last.Status)
}
