package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketsList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tickets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("page_size"))
		assert.Equal(t, "open", q.Get("status"))
		assert.Equal(t, "desc", q.Get("sort_order"))
		writeEnvelope(t, w, TicketListResponse{
			Tickets: []Ticket{{ID: 1, TicketNumber: "T-0001", Title: "VPN down", Status: TicketStatusOpen}},
			Total:   1, Page: 1, PageSize: 100,
		})
	})

	resp, err := c.Tickets().List(context.Background(), TicketListOptions{
		PageRequest: PageRequest{PageSize: 1000},
		Status:      TicketStatusOpen,
		SortOrder:   "desc",
	})
	require.NoError(t, err)
	require.Len(t, resp.Tickets, 1)
	assert.Equal(t, "T-0001", resp.Tickets[0].TicketNumber)
}

func TestTicketsListRejectsSortOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Tickets().List(context.Background(), TicketListOptions{SortOrder: "sideways"})
	require.Error(t, err)
}

func TestCreateTicketRequestValidate(t *testing.T) {
	valid := CreateTicketRequest{
		Title:       "Printer jam",
		Description: "The second floor printer jams on every job.",
		Priority:    PriorityMedium,
		Category:    "hardware",
		RequesterID: 3,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Title = "x"
	bad.Description = "short"
	bad.Priority = "urgent"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title must be 2-200 characters")
	assert.Contains(t, err.Error(), "description must be 10-5000 characters")
	assert.Contains(t, err.Error(), `invalid priority "urgent"`)

	long := valid
	long.Title = strings.Repeat("a", 201)
	require.Error(t, long.Validate())
}

func TestTicketsActions(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*TicketService) (*Ticket, error)
		wantPath string
		wantBody map[string]any
	}{
		{
			name:     "assign",
			call:     func(s *TicketService) (*Ticket, error) { return s.Assign(context.Background(), 5, 9, "") },
			wantPath: "/api/v1/tickets/5/assign",
			wantBody: map[string]any{"assignee_id": float64(9)},
		},
		{
			name:     "assign with comment",
			call:     func(s *TicketService) (*Ticket, error) { return s.Assign(context.Background(), 5, 9, "network team") },
			wantPath: "/api/v1/tickets/5/assign",
			wantBody: map[string]any{"assignee_id": float64(9), "comment": "network team"},
		},
		{
			name:     "escalate",
			call:     func(s *TicketService) (*Ticket, error) { return s.Escalate(context.Background(), 5, "customer waiting") },
			wantPath: "/api/v1/tickets/5/escalate",
			wantBody: map[string]any{"reason": "customer waiting"},
		},
		{
			name:     "resolve",
			call:     func(s *TicketService) (*Ticket, error) { return s.Resolve(context.Background(), 5, "replaced cable") },
			wantPath: "/api/v1/tickets/5/resolve",
			wantBody: map[string]any{"resolution": "replaced cable"},
		},
		{
			name:     "close",
			call:     func(s *TicketService) (*Ticket, error) { return s.Close(context.Background(), 5, "thanks") },
			wantPath: "/api/v1/tickets/5/close",
			wantBody: map[string]any{"feedback": "thanks"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.wantBody, body)
				writeEnvelope(t, w, Ticket{ID: 5})
			})
			ticket, err := tt.call(c.Tickets())
			require.NoError(t, err)
			assert.Equal(t, 5, ticket.ID)
		})
	}
}

func TestTicketsUpdateStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"status": "resolved"}, body)
		writeEnvelope(t, w, Ticket{ID: 3, Status: TicketStatusResolved})
	})

	ticket, err := c.Tickets().UpdateStatus(context.Background(), 3, TicketStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, TicketStatusResolved, ticket.Status)

	_, err = c.Tickets().UpdateStatus(context.Background(), 3, "archived")
	require.Error(t, err)
}

func TestTicketsSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tickets/search", r.URL.Path)
		assert.Equal(t, "mail server", r.URL.Query().Get("q"))
		writeEnvelope(t, w, []Ticket{{ID: 1}, {ID: 2}})
	})

	tickets, err := c.Tickets().Search(context.Background(), "mail server")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	_, err = c.Tickets().Search(context.Background(), "")
	require.Error(t, err)
}

func TestTicketsDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tickets/7":
			writeEnvelope(t, w, Ticket{ID: 7, Title: "Disk full"})
		case "/api/v1/tickets/7/activity":
			writeEnvelope(t, w, []TicketActivity{{Action: "created", UserID: 1}})
		case "/api/v1/sla/v2/violations":
			writeEnvelope(t, w, Page[SLAViolation]{Items: []SLAViolation{
				{ID: 1, TicketID: 7},
				{ID: 2, TicketID: 8},
			}, Total: 2})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	detail, err := c.Tickets().Detail(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Disk full", detail.Ticket.Title)
	assert.Len(t, detail.Activity, 1)
	require.Len(t, detail.Violations, 1)
	assert.Equal(t, 1, detail.Violations[0].ID)
	assert.Empty(t, detail.Errors)
}

func TestTicketsDetailCollectsViolationsFromAllPages(t *testing.T) {
	var pages []int
	violations := pagedViolations(t, 250, &pages)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tickets/3":
			writeEnvelope(t, w, Ticket{ID: 3})
		case "/api/v1/tickets/3/activity":
			writeEnvelope(t, w, []TicketActivity{})
		default:
			violations(w, r)
		}
	})

	detail, err := c.Tickets().Detail(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, detail.Violations, 36)
	assert.Equal(t, 248, detail.Violations[len(detail.Violations)-1].ID)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestTicketsDetailPartial(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tickets/7":
			writeEnvelope(t, w, Ticket{ID: 7})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	detail, err := c.Tickets().Detail(context.Background(), 7)
	require.Error(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, 7, detail.Ticket.ID)
	assert.Contains(t, detail.Errors, "activity")
	assert.Contains(t, detail.Errors, "violations")
	assert.Empty(t, detail.Violations)
}

func TestTicketsDetailRequiresTicket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/tickets/7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeEnvelope(t, w, []TicketActivity{})
	})

	detail, err := c.Tickets().Detail(context.Background(), 7)
	require.Error(t, err)
	assert.Nil(t, detail)
	assert.True(t, IsNotFound(err))
}

func TestIncidentSeverity(t *testing.T) {
	assert.Equal(t, SeverityP1, Incident{Priority: PriorityCritical}.Severity())
	assert.Equal(t, SeverityP2, Incident{Priority: PriorityHigh}.Severity())
	assert.Equal(t, SeverityP3, Incident{Priority: PriorityMedium}.Severity())
	assert.Equal(t, SeverityP4, Incident{Priority: PriorityLow}.Severity())
}

func TestIncidentsCreateValidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body CreateIncidentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeEnvelope(t, w, Incident{ID: 11, Title: body.Title, Priority: body.Priority})
	})

	_, err := c.Incidents().Create(context.Background(), CreateIncidentRequest{Title: "Outage"})
	require.Error(t, err)

	incident, err := c.Incidents().Create(context.Background(), CreateIncidentRequest{
		Title:       "Outage",
		Description: "Checkout returns 502",
		Priority:    PriorityCritical,
		Source:      IncidentSourceMonitoring,
		Type:        IncidentTypeSoftware,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, incident.ID)
	assert.Equal(t, SeverityP1, incident.Severity())
}

func TestIncidentsClose(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/incidents/4/close", r.URL.Path)
		writeEnvelope(t, w, Incident{ID: 4, Status: IncidentStatusClosed})
	})

	incident, err := c.Incidents().Close(context.Background(), 4, "rolled back")
	require.NoError(t, err)
	assert.Equal(t, IncidentStatusClosed, incident.Status)
}
