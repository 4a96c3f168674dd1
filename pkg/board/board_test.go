package board

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

type fakeSource struct {
	tickets []client.Ticket
	moveErr error
	moves   []client.TicketStatus
}

func (f *fakeSource) ListTickets(context.Context) ([]client.Ticket, error) {
	return append([]client.Ticket(nil), f.tickets...), nil
}

func (f *fakeSource) MoveTicket(_ context.Context, _ int, status client.TicketStatus) error {
	f.moves = append(f.moves, status)
	return f.moveErr
}

func sampleTickets() []client.Ticket {
	return []client.Ticket{
		{ID: 1, Title: "Printer offline", Status: client.TicketStatusNew, Priority: client.PriorityLow},
		{ID: 2, Title: "VPN down", Status: client.TicketStatusNew, Priority: client.PriorityCritical},
		{ID: 3, Title: "Password reset", Status: client.TicketStatusOpen, Priority: client.PriorityMedium},
		{ID: 4, Title: "Disk full", Status: client.TicketStatusInProgress, Priority: client.PriorityHigh},
		{ID: 5, Title: "Old request", Status: client.TicketStatusCancelled, Priority: client.PriorityHigh},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// loaded returns a model that already received the source's tickets.
func loaded(t *testing.T, src Source) Model {
	t.Helper()
	m := New(context.Background(), src)
	msg := m.Init()()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, msgs ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	var next tea.Model = m
	for _, msg := range msgs {
		next, cmd = next.(Model).Update(msg)
	}
	return next.(Model), cmd
}

func TestLoadSortsColumnsByPriority(t *testing.T) {
	m := loaded(t, &fakeSource{tickets: sampleTickets()})

	newCol := m.column(0)
	require.Len(t, newCol, 2)
	assert.Equal(t, 2, newCol[0].ID, "critical first")
	assert.Equal(t, 1, newCol[1].ID)

	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, 2, sel.ID)
	assert.Equal(t, "5 tickets", m.status)
}

func TestNavigation(t *testing.T) {
	m := loaded(t, &fakeSource{tickets: sampleTickets()})

	m, _ = press(t, m, runes("j"))
	sel, _ := m.Selected()
	assert.Equal(t, 1, sel.ID)

	m, _ = press(t, m, runes("j"))
	sel, _ = m.Selected()
	assert.Equal(t, 1, sel.ID, "cursor stays on the last card")

	m, _ = press(t, m, runes("l"), runes("l"))
	sel, _ = m.Selected()
	assert.Equal(t, 4, sel.ID)

	m, _ = press(t, m, runes("l"))
	_, ok := m.Selected()
	assert.False(t, ok, "pending approval column is empty")

	m, _ = press(t, m, runes("h"), runes("h"), runes("h"), runes("h"), runes("h"))
	assert.Equal(t, 0, m.col)
}

func TestMoveIsOptimisticAndPersisted(t *testing.T) {
	src := &fakeSource{tickets: sampleTickets()}
	m := loaded(t, src)

	m, cmd := press(t, m, runes("]"))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.col)
	sel, _ := m.Selected()
	assert.Equal(t, 2, sel.ID)
	assert.Equal(t, client.TicketStatusOpen, sel.Status)

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.NoError(t, m.err)
	assert.Equal(t, "Ticket 2 moved to open", m.status)
	assert.Equal(t, []client.TicketStatus{client.TicketStatusOpen}, src.moves)
}

func TestMoveRevertsOnError(t *testing.T) {
	src := &fakeSource{tickets: sampleTickets(), moveErr: errors.New("transition not allowed")}
	m := loaded(t, src)

	m, cmd := press(t, m, runes("]"))
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)

	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "transition not allowed")
	assert.Equal(t, 0, m.col)
	sel, _ := m.Selected()
	assert.Equal(t, 2, sel.ID)
	assert.Equal(t, client.TicketStatusNew, sel.Status)
}

func TestShiftMovesRight(t *testing.T) {
	src := &fakeSource{tickets: sampleTickets()}
	m := loaded(t, src)
	m, cmd := press(t, m, runes("L"))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.col)
}

func TestMoveAtEdgeIsNoop(t *testing.T) {
	m := loaded(t, &fakeSource{tickets: sampleTickets()})
	m, cmd := press(t, m, runes("["))
	assert.Nil(t, cmd)
	assert.Equal(t, 0, m.col)
}

func TestReadOnlyBoard(t *testing.T) {
	src := &fakeSource{tickets: sampleTickets()}
	m := loaded(t, ReadOnly(src))

	m, cmd := press(t, m, runes("]"))
	assert.Nil(t, cmd)
	require.Error(t, m.err)
	assert.Equal(t, "read-only board", m.err.Error())
	assert.Empty(t, src.moves)
	assert.Contains(t, m.View(), "read-only")
}

func TestFilterAndPriorityCycle(t *testing.T) {
	m := loaded(t, &fakeSource{tickets: sampleTickets()})

	m, _ = press(t, m, runes("/"))
	require.True(t, m.filtering)
	m, _ = press(t, m, runes("vpn"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.filtering)
	assert.Len(t, m.column(0), 1)
	assert.Empty(t, m.column(1))

	m, _ = press(t, m, runes("/"), tea.KeyMsg{Type: tea.KeyEsc})
	assert.Len(t, m.column(0), 2)

	m, _ = press(t, m, runes("p"))
	assert.Equal(t, client.PriorityLow, priorityCycle[m.priority])
	assert.Len(t, m.column(0), 1)
	assert.Empty(t, m.column(1))

	m, _ = press(t, m, runes("p"), runes("p"), runes("p"))
	assert.Equal(t, client.PriorityCritical, priorityCycle[m.priority])
	assert.Equal(t, 2, m.column(0)[0].ID)
	assert.Empty(t, m.column(2))

	m, _ = press(t, m, runes("p"))
	assert.Equal(t, 0, m.priority)
	assert.Len(t, m.column(0), 2)
}

func TestQuitAndRefresh(t *testing.T) {
	m := loaded(t, &fakeSource{tickets: sampleTickets()})

	_, cmd := press(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	m, cmd = press(t, m, runes("r"))
	require.NotNil(t, cmd)
	assert.True(t, m.loading)
	_, ok := cmd().(loadedMsg)
	assert.True(t, ok)
}

func TestViewShowsColumns(t *testing.T) {
	m := loaded(t, &fakeSource{tickets: sampleTickets()})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	view := next.(Model).View()

	assert.Contains(t, view, "NEW (2)")
	assert.Contains(t, view, "IN_PROGRESS (1)")
	assert.Contains(t, view, "#2 VPN down")
	assert.NotContains(t, view, "Old request")
}

func TestClientSource(t *testing.T) {
	var statuses []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tickets":
			_ = json.NewEncoder(w).Encode(client.TicketListResponse{
				Tickets: sampleTickets()[:2], Total: 2, Page: 1, PageSize: client.MaxPageSize,
			})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/tickets/2":
			var body client.UpdateTicketRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			statuses = append(statuses, string(body.Status))
			_ = json.NewEncoder(w).Encode(client.Ticket{ID: 2, Status: body.Status})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := client.New(client.WithServer(srv.URL), client.WithToken("t"))
	require.NoError(t, err)
	src := ClientSource{Tickets: c.Tickets()}

	tickets, err := src.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	require.NoError(t, src.MoveTicket(context.Background(), 2, client.TicketStatusResolved))
	assert.Equal(t, []string{"resolved"}, statuses)
}
