package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type Ticket struct {
	ID           int            `json:"id"`
	TicketNumber string         `json:"ticket_number"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       TicketStatus   `json:"status"`
	Priority     Priority       `json:"priority"`
	Category     string         `json:"category,omitempty"`
	CategoryID   int            `json:"category_id,omitempty"`
	RequesterID  int            `json:"requester_id"`
	AssigneeID   int            `json:"assignee_id,omitempty"`
	TenantID     int            `json:"tenant_id"`
	Tags         []string       `json:"tags,omitempty"`
	FormFields   map[string]any `json:"form_fields,omitempty"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type CreateTicketRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    Priority       `json:"priority"`
	Category    string         `json:"category"`
	RequesterID int            `json:"requester_id"`
	AssigneeID  int            `json:"assignee_id,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	FormFields  map[string]any `json:"form_fields,omitempty"`
}

// Validate mirrors the backend binding rules so obviously bad input fails
// before a round trip.
func (r CreateTicketRequest) Validate() error {
	var errs []error
	if n := len([]rune(r.Title)); n < 2 || n > 200 {
		errs = append(errs, errors.New("title must be 2-200 characters"))
	}
	if n := len([]rune(r.Description)); n < 10 || n > 5000 {
		errs = append(errs, errors.New("description must be 10-5000 characters"))
	}
	if !r.Priority.Valid() {
		errs = append(errs, fmt.Errorf("invalid priority %q", r.Priority))
	}
	if r.Category == "" {
		errs = append(errs, errors.New("category is required"))
	}
	if r.RequesterID <= 0 {
		errs = append(errs, errors.New("requester_id is required"))
	}
	return errors.Join(errs...)
}

type UpdateTicketRequest struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Priority    Priority       `json:"priority,omitempty"`
	Status      TicketStatus   `json:"status,omitempty"`
	Category    string         `json:"category,omitempty"`
	AssigneeID  int            `json:"assignee_id,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	FormFields  map[string]any `json:"form_fields,omitempty"`
}

type TicketListOptions struct {
	PageRequest
	Status      TicketStatus `url:"status,omitempty"`
	Priority    Priority     `url:"priority,omitempty"`
	Category    string       `url:"category,omitempty"`
	AssigneeID  int          `url:"assignee_id,omitempty"`
	RequesterID int          `url:"requester_id,omitempty"`
	Keyword     string       `url:"keyword,omitempty"`
	IsOverdue   bool         `url:"is_overdue,omitempty"`
	SortBy      string       `url:"sort_by,omitempty"`
	SortOrder   string       `url:"sort_order,omitempty"`
}

type TicketListResponse struct {
	Tickets  []Ticket `json:"tickets"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

type TicketStats struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	InProgress   int `json:"in_progress"`
	Resolved     int `json:"resolved"`
	HighPriority int `json:"high_priority"`
	Overdue      int `json:"overdue"`
}

type TicketActivity struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int       `json:"user_id"`
	Details   string    `json:"details"`
}

type TicketService struct {
	client *Client
}

func (c *Client) Tickets() *TicketService {
	return &TicketService{client: c}
}

func (s *TicketService) List(ctx context.Context, opts TicketListOptions) (*TicketListResponse, error) {
	opts.PageRequest = opts.PageRequest.Normalize()
	if opts.SortOrder != "" && opts.SortOrder != "asc" && opts.SortOrder != "desc" {
		return nil, fmt.Errorf("invalid sort order %q", opts.SortOrder)
	}
	endpoint, err := withQuery("api/v1/tickets", opts)
	if err != nil {
		return nil, err
	}
	var resp TicketListResponse
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *TicketService) Get(ctx context.Context, id int) (*Ticket, error) {
	var ticket Ticket
	if err := s.client.do(ctx, http.MethodGet, ticketPath(id, ""), nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *TicketService) Create(ctx context.Context, req CreateTicketRequest) (*Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var ticket Ticket
	if err := s.client.do(ctx, http.MethodPost, "api/v1/tickets", req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *TicketService) Update(ctx context.Context, id int, req UpdateTicketRequest) (*Ticket, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", req.Status)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", req.Priority)
	}
	var ticket Ticket
	if err := s.client.do(ctx, http.MethodPut, ticketPath(id, ""), req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateStatus moves a ticket to status; it backs the kanban board.
func (s *TicketService) UpdateStatus(ctx context.Context, id int, status TicketStatus) (*Ticket, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	return s.Update(ctx, id, UpdateTicketRequest{Status: status})
}

func (s *TicketService) Delete(ctx context.Context, id int) error {
	return s.client.do(ctx, http.MethodDelete, ticketPath(id, ""), nil, nil)
}

// Assign hands the ticket to assigneeID; comment is optional.
func (s *TicketService) Assign(ctx context.Context, id, assigneeID int, comment string) (*Ticket, error) {
	if assigneeID <= 0 {
		return nil, errors.New("assignee is required")
	}
	payload := map[string]any{"assignee_id": assigneeID}
	if comment != "" {
		payload["comment"] = comment
	}
	return s.action(ctx, id, "assign", payload)
}

func (s *TicketService) Escalate(ctx context.Context, id int, reason string) (*Ticket, error) {
	if reason == "" {
		return nil, errors.New("reason is required")
	}
	return s.action(ctx, id, "escalate", map[string]any{"reason": reason})
}

func (s *TicketService) Resolve(ctx context.Context, id int, resolution string) (*Ticket, error) {
	if resolution == "" {
		return nil, errors.New("resolution is required")
	}
	return s.action(ctx, id, "resolve", map[string]any{"resolution": resolution})
}

func (s *TicketService) Close(ctx context.Context, id int, feedback string) (*Ticket, error) {
	return s.action(ctx, id, "close", map[string]any{"feedback": feedback})
}

func (s *TicketService) action(ctx context.Context, id int, action string, payload any) (*Ticket, error) {
	var ticket Ticket
	if err := s.client.do(ctx, http.MethodPost, ticketPath(id, action), payload, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *TicketService) Activity(ctx context.Context, id int) ([]TicketActivity, error) {
	var activities []TicketActivity
	if err := s.client.do(ctx, http.MethodGet, ticketPath(id, "activity"), nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (s *TicketService) Stats(ctx context.Context) (*TicketStats, error) {
	var stats TicketStats
	if err := s.client.do(ctx, http.MethodGet, "api/v1/tickets/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *TicketService) Search(ctx context.Context, term string) ([]Ticket, error) {
	if term == "" {
		return nil, errors.New("search term is required")
	}
	endpoint, err := withQuery("api/v1/tickets/search", struct {
		Q string `url:"q"`
	}{term})
	if err != nil {
		return nil, err
	}
	var tickets []Ticket
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *TicketService) Overdue(ctx context.Context) ([]Ticket, error) {
	var tickets []Ticket
	if err := s.client.do(ctx, http.MethodGet, "api/v1/tickets/overdue", nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// TicketDetail bundles a ticket with the data shown alongside it.
type TicketDetail struct {
	Ticket     *Ticket          `json:"ticket"`
	Activity   []TicketActivity `json:"activity"`
	Violations []SLAViolation   `json:"violations"`
	// Errors maps a section name to the reason it is missing.
	Errors map[string]string `json:"errors,omitempty"`
}

// Detail fetches the ticket, its activity and its SLA violations
// concurrently. Only the ticket itself is mandatory; other sections that fail
// are reported in Errors and the joined error.
func (s *TicketService) Detail(ctx context.Context, id int) (*TicketDetail, error) {
	var (
		wg         sync.WaitGroup
		ticket     *Ticket
		ticketErr  error
		activity   []TicketActivity
		actErr     error
		violations []SLAViolation
		violErr    error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		ticket, ticketErr = s.Get(ctx, id)
	}()
	go func() {
		defer wg.Done()
		activity, actErr = s.Activity(ctx, id)
	}()
	go func() {
		defer wg.Done()
		violErr = s.client.SLA().EachViolation(ctx, ViolationListOptions{}, func(v SLAViolation) bool {
			if v.TicketID == id {
				violations = append(violations, v)
			}
			return true
		})
	}()
	wg.Wait()

	if ticketErr != nil {
		return nil, ticketErr
	}
	detail := &TicketDetail{Ticket: ticket, Activity: activity, Violations: []SLAViolation{}, Errors: map[string]string{}}
	var errs []error
	if actErr != nil {
		detail.Errors["activity"] = actErr.Error()
		errs = append(errs, fmt.Errorf("activity: %w", actErr))
	}
	if violErr != nil {
		detail.Errors["violations"] = violErr.Error()
		errs = append(errs, fmt.Errorf("violations: %w", violErr))
	} else if len(violations) > 0 {
		detail.Violations = violations
	}
	return detail, errors.Join(errs...)
}

func ticketPath(id int, action string) string {
	if action == "" {
		return fmt.Sprintf("api/v1/tickets/%d", id)
	}
	return fmt.Sprintf("api/v1/tickets/%d/%s", id, action)
}
