// Package board is a terminal kanban board of tickets grouped by status.
// Cards move between columns with an optimistic update that is reverted when
// the backend rejects the change.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

// Columns are the statuses shown on the board, left to right. Tickets in any
// other status are not displayed.
var Columns = []client.TicketStatus{
	client.TicketStatusNew,
	client.TicketStatusOpen,
	client.TicketStatusInProgress,
	client.TicketStatusPendingApproval,
	client.TicketStatusResolved,
	client.TicketStatusClosed,
}

// priorityCycle is the order the priority filter steps through; "" shows all.
var priorityCycle = []client.Priority{"", client.PriorityLow, client.PriorityMedium, client.PriorityHigh, client.PriorityCritical}

const minColumnWidth = 18

type loadedMsg struct {
	tickets []client.Ticket
	err     error
}

type movedMsg struct {
	id   int
	from client.TicketStatus
	to   client.TicketStatus
	err  error
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	columnStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	activeColumn  = columnStyle.BorderForeground(lipgloss.Color("39"))
	cardStyle     = lipgloss.NewStyle().Padding(0, 1)
	selectedCard  = cardStyle.Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	priorityColor = map[client.Priority]lipgloss.Color{
		client.PriorityCritical: lipgloss.Color("196"),
		client.PriorityHigh:     lipgloss.Color("208"),
		client.PriorityMedium:   lipgloss.Color("220"),
		client.PriorityLow:      lipgloss.Color("246"),
	}
)

type Model struct {
	ctx    context.Context
	source Source
	keys   KeyMap

	tickets []client.Ticket
	col     int
	row     int

	filter    textinput.Model
	filtering bool
	priority  int

	status  string
	err     error
	loading bool

	width  int
	height int
}

func New(ctx context.Context, src Source) Model {
	in := textinput.New()
	in.Prompt = "/"
	in.Placeholder = "title or number"
	return Model{
		ctx:     ctx,
		source:  src,
		keys:    DefaultKeyMap,
		filter:  in,
		loading: true,
	}
}

// Run shows the board until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(New(ctx, src),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) load() tea.Cmd {
	ctx, src := m.ctx, m.source
	return func() tea.Msg {
		tickets, err := src.ListTickets(ctx)
		return loadedMsg{tickets: tickets, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.tickets = msg.tickets
		m.status = fmt.Sprintf("%d tickets", len(msg.tickets))
		m.clamp()
		return m, nil

	case movedMsg:
		if msg.err != nil {
			m.setStatus(msg.id, msg.from)
			m.err = fmt.Errorf("move of ticket %d failed: %w", msg.id, msg.err)
			m.focusTicket(msg.id)
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("Ticket %d moved to %s", msg.id, msg.to)
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filter.SetValue("")
		fallthrough
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		m.clamp()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.clamp()
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Left):
		if m.col > 0 {
			m.col--
			m.clamp()
		}
	case key.Matches(msg, m.keys.Right):
		if m.col < len(Columns)-1 {
			m.col++
			m.clamp()
		}
	case key.Matches(msg, m.keys.Up):
		if m.row > 0 {
			m.row--
		}
	case key.Matches(msg, m.keys.Down):
		if m.row < len(m.column(m.col))-1 {
			m.row++
		}
	case key.Matches(msg, m.keys.MoveLeft):
		return m.move(-1)
	case key.Matches(msg, m.keys.MoveRight):
		return m.move(1)
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	case key.Matches(msg, m.keys.Priority):
		m.priority = (m.priority + 1) % len(priorityCycle)
		m.clamp()
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, m.load()
	}
	return m, nil
}

// move shifts the selected ticket delta columns and persists it in the
// background; the card moves immediately.
func (m Model) move(delta int) (tea.Model, tea.Cmd) {
	ticket, ok := m.Selected()
	if !ok {
		return m, nil
	}
	target := m.col + delta
	if target < 0 || target >= len(Columns) || Columns[target] == ticket.Status {
		return m, nil
	}
	mover, ok := m.source.(Mover)
	if !ok {
		m.err = errors.New("read-only board")
		return m, nil
	}
	from, to := ticket.Status, Columns[target]
	m.setStatus(ticket.ID, to)
	m.col = target
	m.focusTicket(ticket.ID)
	m.status = fmt.Sprintf("Moving ticket %d to %s", ticket.ID, to)

	ctx, id := m.ctx, ticket.ID
	return m, func() tea.Msg {
		return movedMsg{id: id, from: from, to: to, err: mover.MoveTicket(ctx, id, to)}
	}
}

func (m *Model) setStatus(id int, status client.TicketStatus) {
	for i := range m.tickets {
		if m.tickets[i].ID == id {
			m.tickets[i].Status = status
			return
		}
	}
}

// focusTicket moves the cursor onto the ticket with id, if it is visible.
func (m *Model) focusTicket(id int) {
	for c := range Columns {
		for r, t := range m.column(c) {
			if t.ID == id {
				m.col, m.row = c, r
				return
			}
		}
	}
	m.clamp()
}

func (m *Model) clamp() {
	n := len(m.column(m.col))
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m Model) visible(t client.Ticket) bool {
	if p := priorityCycle[m.priority]; p != "" && t.Priority != p {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.TicketNumber), q) ||
		strings.Contains(fmt.Sprint(t.ID), q)
}

// column returns the visible tickets of column c, highest priority first.
func (m Model) column(c int) []client.Ticket {
	var out []client.Ticket
	for _, t := range m.tickets {
		if t.Status == Columns[c] && m.visible(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b client.Ticket) int {
		if d := b.Priority.Rank() - a.Priority.Rank(); d != 0 {
			return d
		}
		return a.ID - b.ID
	})
	return out
}

// Selected returns the ticket under the cursor.
func (m Model) Selected() (client.Ticket, bool) {
	tickets := m.column(m.col)
	if m.row < 0 || m.row >= len(tickets) {
		return client.Ticket{}, false
	}
	return tickets[m.row], true
}

func (m Model) columnWidth() int {
	if m.width == 0 {
		return minColumnWidth
	}
	return max(minColumnWidth, m.width/len(Columns)-2)
}

func (m Model) View() string {
	if m.loading && m.tickets == nil {
		return "Loading tickets...\n"
	}
	width := m.columnWidth()
	cols := make([]string, len(Columns))
	for c, status := range Columns {
		tickets := m.column(c)
		lines := []string{headerStyle.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(string(status)), len(tickets)))}
		for r, t := range tickets {
			lines = append(lines, m.card(t, width, c == m.col && r == m.row))
		}
		style := columnStyle
		if c == m.col {
			style = activeColumn
		}
		cols[c] = style.Width(width).Render(strings.Join(lines, "\n"))
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) card(t client.Ticket, width int, selected bool) string {
	title := fmt.Sprintf("#%d %s", t.ID, t.Title)
	if limit := width - 2; len([]rune(title)) > limit && limit > 1 {
		title = string([]rune(title)[:limit-1]) + "…"
	}
	style := cardStyle
	if selected {
		style = selectedCard
	}
	if c, ok := priorityColor[t.Priority]; ok {
		style = style.Foreground(c)
	}
	return style.Render(title)
}

func (m Model) footer() string {
	var parts []string
	if m.filtering {
		parts = append(parts, m.filter.View())
	} else if v := m.filter.Value(); v != "" {
		parts = append(parts, "filter: "+v)
	}
	if p := priorityCycle[m.priority]; p != "" {
		parts = append(parts, "priority: "+string(p))
	}
	if _, ok := m.source.(Mover); !ok {
		parts = append(parts, "read-only")
	}
	line := statusStyle.Render(strings.Join(append(parts, m.status), "  "))
	if m.err != nil {
		line += "  " + errorStyle.Render(m.err.Error())
	}

	help := make([]string, 0, len(m.keys.help()))
	for _, b := range m.keys.help() {
		h := b.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	return line + "\n" + statusStyle.Render(strings.Join(help, " · "))
}
