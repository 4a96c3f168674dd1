package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Incident struct {
	ID               int            `json:"id"`
	IncidentNumber   string         `json:"incident_number"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Status           IncidentStatus `json:"status"`
	Priority         Priority       `json:"priority"`
	Source           IncidentSource `json:"source"`
	Type             IncidentType   `json:"type"`
	IsMajorIncident  bool           `json:"is_major_incident"`
	RequesterID      int            `json:"requester_id"`
	RequesterName    string         `json:"requester_name,omitempty"`
	AssigneeID       int            `json:"assignee_id,omitempty"`
	AssigneeName     string         `json:"assignee_name,omitempty"`
	CategoryID       int            `json:"category_id,omitempty"`
	Resolution       string         `json:"resolution,omitempty"`
	ResolutionTime   *time.Time     `json:"resolution_time,omitempty"`
	FirstResponseAt  *time.Time     `json:"first_response_time,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	ConfigurationIDs []int          `json:"configuration_item_ids,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Severity maps the incident priority onto the P1-P4 scale.
func (i Incident) Severity() Severity {
	switch i.Priority {
	case PriorityCritical:
		return SeverityP1
	case PriorityHigh:
		return SeverityP2
	case PriorityMedium:
		return SeverityP3
	default:
		return SeverityP4
	}
}

type CreateIncidentRequest struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Priority        Priority       `json:"priority"`
	Source          IncidentSource `json:"source"`
	Type            IncidentType   `json:"type"`
	RequesterID     int            `json:"requester_id,omitempty"`
	AssigneeID      int            `json:"assignee_id,omitempty"`
	CategoryID      int            `json:"category_id,omitempty"`
	IsMajorIncident bool           `json:"is_major_incident,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
}

func (r CreateIncidentRequest) Validate() error {
	var errs []error
	if r.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if r.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if !r.Priority.Valid() {
		errs = append(errs, fmt.Errorf("invalid priority %q", r.Priority))
	}
	if !r.Source.Valid() {
		errs = append(errs, fmt.Errorf("invalid source %q", r.Source))
	}
	if !r.Type.Valid() {
		errs = append(errs, fmt.Errorf("invalid type %q", r.Type))
	}
	return errors.Join(errs...)
}

type UpdateIncidentRequest struct {
	Title           string         `json:"title,omitempty"`
	Description     string         `json:"description,omitempty"`
	Status          IncidentStatus `json:"status,omitempty"`
	Priority        Priority       `json:"priority,omitempty"`
	AssigneeID      int            `json:"assignee_id,omitempty"`
	CategoryID      int            `json:"category_id,omitempty"`
	Resolution      string         `json:"resolution,omitempty"`
	IsMajorIncident *bool          `json:"is_major_incident,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
}

type IncidentListOptions struct {
	PageRequest
	Status          IncidentStatus `url:"status,omitempty"`
	Priority        Priority       `url:"priority,omitempty"`
	Source          IncidentSource `url:"source,omitempty"`
	Type            IncidentType   `url:"type,omitempty"`
	AssigneeID      int            `url:"assignee_id,omitempty"`
	IsMajorIncident *bool          `url:"is_major_incident,omitempty"`
	Keyword         string         `url:"keyword,omitempty"`
	SortBy          string         `url:"sort_by,omitempty"`
	SortOrder       string         `url:"sort_order,omitempty"`
}

type IncidentListResponse struct {
	Incidents []Incident `json:"incidents"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

type IncidentStats struct {
	Total                int            `json:"total"`
	ByStatus             map[string]int `json:"by_status"`
	ByPriority           map[string]int `json:"by_priority"`
	ByType               map[string]int `json:"by_type"`
	BySource             map[string]int `json:"by_source"`
	AvgResolutionTime    float64        `json:"avg_resolution_time"`
	AvgFirstResponseTime float64        `json:"avg_first_response_time"`
	SLAComplianceRate    float64        `json:"sla_compliance_rate"`
}

type IncidentService struct {
	client *Client
}

func (c *Client) Incidents() *IncidentService {
	return &IncidentService{client: c}
}

func (s *IncidentService) List(ctx context.Context, opts IncidentListOptions) (*IncidentListResponse, error) {
	opts.PageRequest = opts.PageRequest.Normalize()
	endpoint, err := withQuery("api/v1/incidents", opts)
	if err != nil {
		return nil, err
	}
	var resp IncidentListResponse
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *IncidentService) Get(ctx context.Context, id int) (*Incident, error) {
	var incident Incident
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/incidents/%d", id), nil, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

func (s *IncidentService) Create(ctx context.Context, req CreateIncidentRequest) (*Incident, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var incident Incident
	if err := s.client.do(ctx, http.MethodPost, "api/v1/incidents", req, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

func (s *IncidentService) Update(ctx context.Context, id int, req UpdateIncidentRequest) (*Incident, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", req.Status)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", req.Priority)
	}
	var incident Incident
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/incidents/%d", id), req, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

func (s *IncidentService) Close(ctx context.Context, id int, resolution string) (*Incident, error) {
	var incident Incident
	payload := map[string]string{"resolution": resolution}
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/incidents/%d/close", id), payload, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

func (s *IncidentService) Stats(ctx context.Context) (*IncidentStats, error) {
	var stats IncidentStats
	if err := s.client.do(ctx, http.MethodGet, "api/v1/incidents/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
