package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// batchConcurrency bounds the number of in-flight requests of a batch update.
const batchConcurrency = 8

type SLADefinition struct {
	ID                    int       `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description"`
	ServiceType           string    `json:"service_type"`
	Priority              Priority  `json:"priority"`
	ResponseTimeMinutes   int       `json:"response_time_minutes"`
	ResolutionTimeMinutes int       `json:"resolution_time_minutes"`
	AvailabilityTarget    float64   `json:"availability_target"`
	IsActive              bool      `json:"is_active"`
	TenantID              int       `json:"tenant_id"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type SLADefinitionRequest struct {
	Name                  string   `json:"name,omitempty"`
	Description           string   `json:"description,omitempty"`
	ServiceType           string   `json:"service_type,omitempty"`
	Priority              Priority `json:"priority,omitempty"`
	ResponseTimeMinutes   int      `json:"response_time_minutes,omitempty"`
	ResolutionTimeMinutes int      `json:"resolution_time_minutes,omitempty"`
	AvailabilityTarget    float64  `json:"availability_target,omitempty"`
	IsActive              *bool    `json:"is_active,omitempty"`
}

// Validate checks a full create request.
func (r SLADefinitionRequest) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !r.Priority.Valid() {
		errs = append(errs, fmt.Errorf("invalid priority %q", r.Priority))
	}
	if r.ResponseTimeMinutes <= 0 {
		errs = append(errs, errors.New("response_time_minutes must be positive"))
	}
	if r.ResolutionTimeMinutes <= 0 {
		errs = append(errs, errors.New("resolution_time_minutes must be positive"))
	}
	if r.ResponseTimeMinutes > 0 && r.ResolutionTimeMinutes > 0 && r.ResolutionTimeMinutes < r.ResponseTimeMinutes {
		errs = append(errs, errors.New("resolution_time_minutes must not be shorter than response_time_minutes"))
	}
	if r.AvailabilityTarget < 0 || r.AvailabilityTarget > 100 {
		errs = append(errs, fmt.Errorf("availability_target %v is outside 0-100", r.AvailabilityTarget))
	}
	return errors.Join(errs...)
}

const (
	ViolationStatusOpen     = "open"
	ViolationStatusResolved = "resolved"
)

// maxViolationPages bounds a page walk when the backend keeps reporting more
// items than it returns.
const maxViolationPages = 50

type SLAViolation struct {
	ID            int               `json:"id"`
	TicketID      int               `json:"ticket_id"`
	SLADefID      int               `json:"sla_def_id"`
	ViolationType string            `json:"violation_type"`
	ExpectedTime  time.Time         `json:"expected_time"`
	ActualTime    time.Time         `json:"actual_time"`
	DelayMinutes  int               `json:"delay_minutes"`
	Status        string            `json:"status"`
	Severity      ViolationSeverity `json:"severity"`
	Description   string            `json:"description"`
	Notes         string            `json:"notes,omitempty"`
	IsResolved    bool              `json:"is_resolved"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
	TenantID      int               `json:"tenant_id"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Resolved reports whether the violation no longer needs attention. The
// backend records resolution in is_resolved; status is not always updated.
func (v SLAViolation) Resolved() bool {
	return v.IsResolved || v.Status == ViolationStatusResolved
}

// State is the status used for filtering and counting: resolved wins over
// whatever status the backend reports, and an empty status reads as open.
func (v SLAViolation) State() string {
	switch {
	case v.Resolved():
		return ViolationStatusResolved
	case v.Status == "":
		return ViolationStatusOpen
	}
	return v.Status
}

type ViolationListOptions struct {
	PageRequest
	IsResolved      *bool             `url:"is_resolved,omitempty"`
	Severity        ViolationSeverity `url:"severity,omitempty"`
	ViolationType   string            `url:"violation_type,omitempty"`
	SLADefinitionID int               `url:"sla_definition_id,omitempty"`
	Status          string            `url:"status,omitempty"`
}

type ViolationUpdate struct {
	IsResolved bool   `json:"is_resolved"`
	Notes      string `json:"notes,omitempty"`
}

type SLAComplianceReport struct {
	TotalTickets      int     `json:"total_tickets"`
	MetSLA            int     `json:"met_sla"`
	ViolatedSLA       int     `json:"violated_sla"`
	ComplianceRate    float64 `json:"compliance_rate"`
	AvgResponseTime   float64 `json:"avg_response_time"`
	AvgResolutionTime float64 `json:"avg_resolution_time"`
	ReportPeriod      struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	} `json:"report_period"`
}

type SLAStats struct {
	TotalDefinitions      int     `json:"total_definitions"`
	ActiveDefinitions     int     `json:"active_definitions"`
	TotalViolations       int     `json:"total_violations"`
	OpenViolations        int     `json:"open_violations"`
	OverallComplianceRate float64 `json:"overall_compliance_rate"`
}

type MonitoringRequest struct {
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	SLADefinitionID int    `json:"sla_definition_id,omitempty"`
}

type SLAAlert struct {
	ID            string    `json:"id,omitempty"`
	TicketID      int       `json:"ticket_id"`
	TicketNumber  string    `json:"ticket_number,omitempty"`
	TicketTitle   string    `json:"ticket_title"`
	Priority      string    `json:"priority"`
	AlertLevel    string    `json:"alert_level"`
	TimeRemaining int       `json:"time_remaining"`
	SLADefinition string    `json:"sla_definition"`
	CreatedAt     time.Time `json:"created_at"`
}

type SLAMonitoring struct {
	ComplianceRate           float64    `json:"compliance_rate"`
	ViolationRate            float64    `json:"violation_rate"`
	TotalTickets             int        `json:"total_tickets"`
	CompliantTickets         int        `json:"compliant_tickets"`
	ViolatedTickets          int        `json:"violated_tickets"`
	AtRiskTickets            int        `json:"at_risk_tickets"`
	AverageResponseTime      float64    `json:"average_response_time"`
	AverageResolutionTime    float64    `json:"average_resolution_time"`
	ResponseTimeCompliance   float64    `json:"response_time_compliance"`
	ResolutionTimeCompliance float64    `json:"resolution_time_compliance"`
	Alerts                   []SLAAlert `json:"alerts"`
}

type rawMonitoring struct {
	ComplianceRate           *float64   `json:"compliance_rate"`
	TotalTickets             int        `json:"total_tickets"`
	ViolatedTickets          int        `json:"violated_tickets"`
	AtRiskTickets            *int       `json:"at_risk_tickets"`
	AverageResponseTime      float64    `json:"average_response_time"`
	AverageResolutionTime    float64    `json:"average_resolution_time"`
	ResponseTimeCompliance   float64    `json:"response_time_compliance"`
	ResolutionTimeCompliance float64    `json:"resolution_time_compliance"`
	Alerts                   []SLAAlert `json:"alerts"`
}

// atRiskPercent estimates at-risk tickets when the backend does not report them.
const atRiskPercent = 15

func (r rawMonitoring) derive() SLAMonitoring {
	m := SLAMonitoring{
		TotalTickets:             r.TotalTickets,
		ViolatedTickets:          r.ViolatedTickets,
		CompliantTickets:         r.TotalTickets - r.ViolatedTickets,
		AverageResponseTime:      r.AverageResponseTime,
		AverageResolutionTime:    r.AverageResolutionTime,
		ResponseTimeCompliance:   r.ResponseTimeCompliance,
		ResolutionTimeCompliance: r.ResolutionTimeCompliance,
		Alerts:                   r.Alerts,
	}
	if m.Alerts == nil {
		m.Alerts = []SLAAlert{}
	}
	if r.TotalTickets > 0 {
		m.ViolationRate = float64(r.ViolatedTickets) * 100 / float64(r.TotalTickets)
	}
	switch {
	case r.ComplianceRate != nil:
		m.ComplianceRate = *r.ComplianceRate
	case r.TotalTickets > 0:
		m.ComplianceRate = float64(m.CompliantTickets) * 100 / float64(r.TotalTickets)
	}
	if r.AtRiskTickets != nil {
		m.AtRiskTickets = *r.AtRiskTickets
	} else {
		m.AtRiskTickets = r.TotalTickets * atRiskPercent / 100
	}
	return m
}

type SLAMetricsOptions struct {
	Period          string `url:"period,omitempty"`
	ServiceType     string `url:"service_type,omitempty"`
	Priority        string `url:"priority,omitempty"`
	SLADefinitionID int    `url:"sla_definition_id,omitempty"`
	MetricType      string `url:"metric_type,omitempty"`
}

type SLAMetrics struct {
	ResponseTimeAvg   float64 `json:"response_time_avg"`
	ResolutionTimeAvg float64 `json:"resolution_time_avg"`
	ComplianceRate    float64 `json:"compliance_rate"`
	ViolationCount    int     `json:"violation_count"`
	TrendData         []struct {
		Date              string  `json:"date"`
		ComplianceRate    float64 `json:"compliance_rate"`
		AvgResponseTime   float64 `json:"avg_response_time"`
		AvgResolutionTime float64 `json:"avg_resolution_time"`
	} `json:"trend_data"`
}

type MonitorRun struct {
	CheckedTickets  int `json:"checked_tickets"`
	ViolationsFound int `json:"violations_found"`
	AlertsSent      int `json:"alerts_sent"`
}

type AlertEscalationLevel struct {
	Level       int   `json:"level"`
	Threshold   int   `json:"threshold"`
	NotifyUsers []int `json:"notify_users"`
}

type SLAAlertRule struct {
	ID                   int                    `json:"id,omitempty"`
	Name                 string                 `json:"name"`
	SLADefinitionID      int                    `json:"sla_definition_id"`
	AlertLevel           string                 `json:"alert_level"`
	ThresholdPercentage  int                    `json:"threshold_percentage"`
	NotificationChannels []string               `json:"notification_channels"`
	EscalationEnabled    bool                   `json:"escalation_enabled,omitempty"`
	EscalationLevels     []AlertEscalationLevel `json:"escalation_levels,omitempty"`
	IsActive             bool                   `json:"is_active"`
	CreatedAt            *time.Time             `json:"created_at,omitempty"`
	UpdatedAt            *time.Time             `json:"updated_at,omitempty"`
}

func (r SLAAlertRule) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if r.AlertLevel != "warning" && r.AlertLevel != "critical" {
		errs = append(errs, fmt.Errorf("alert_level must be warning or critical, got %q", r.AlertLevel))
	}
	if r.ThresholdPercentage < 1 || r.ThresholdPercentage > 100 {
		errs = append(errs, fmt.Errorf("threshold_percentage %d is outside 1-100", r.ThresholdPercentage))
	}
	return errors.Join(errs...)
}

type AlertRuleListOptions struct {
	SLADefinitionID int    `url:"sla_definition_id,omitempty"`
	IsActive        *bool  `url:"is_active,omitempty"`
	AlertLevel      string `url:"alert_level,omitempty"`
}

type AlertHistoryOptions struct {
	PageRequest
	SLADefinitionID int    `url:"sla_definition_id,omitempty"`
	AlertRuleID     int    `url:"alert_rule_id,omitempty"`
	TicketID        int    `url:"ticket_id,omitempty"`
	AlertLevel      string `url:"alert_level,omitempty"`
	StartTime       string `url:"start_time,omitempty"`
	EndTime         string `url:"end_time,omitempty"`
}

type SLAAlertHistory struct {
	ID          int       `json:"id"`
	AlertRuleID int       `json:"alert_rule_id"`
	TicketID    int       `json:"ticket_id"`
	AlertLevel  string    `json:"alert_level"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

type SLAService struct {
	client *Client
}

func (c *Client) SLA() *SLAService {
	return &SLAService{client: c}
}

func (s *SLAService) ListDefinitions(ctx context.Context, page PageRequest) (*Page[SLADefinition], error) {
	endpoint, err := withQuery("api/v1/sla/definitions", page.Normalize())
	if err != nil {
		return nil, err
	}
	var resp Page[SLADefinition]
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *SLAService) GetDefinition(ctx context.Context, id int) (*SLADefinition, error) {
	var def SLADefinition
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/sla/definitions/%d", id), nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *SLAService) CreateDefinition(ctx context.Context, req SLADefinitionRequest) (*SLADefinition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var def SLADefinition
	if err := s.client.do(ctx, http.MethodPost, "api/v1/sla/definitions", req, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *SLAService) UpdateDefinition(ctx context.Context, id int, req SLADefinitionRequest) (*SLADefinition, error) {
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", req.Priority)
	}
	var def SLADefinition
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/sla/definitions/%d", id), req, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *SLAService) DeleteDefinition(ctx context.Context, id int) error {
	return s.client.do(ctx, http.MethodDelete, fmt.Sprintf("api/v1/sla/definitions/%d", id), nil, nil)
}

func (s *SLAService) ListViolations(ctx context.Context, opts ViolationListOptions) (*Page[SLAViolation], error) {
	opts.PageRequest = opts.PageRequest.Normalize()
	endpoint, err := withQuery("api/v1/sla/v2/violations", opts)
	if err != nil {
		return nil, err
	}
	var resp Page[SLAViolation]
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EachViolation walks the violation pages matching opts in MaxPageSize steps
// and calls fn for every item until fn returns false, the backend's total is
// reached or maxViolationPages pages were read. opts.Page and opts.PageSize
// are ignored.
func (s *SLAService) EachViolation(ctx context.Context, opts ViolationListOptions, fn func(SLAViolation) bool) error {
	read := 0
	for page := 1; page <= maxViolationPages; page++ {
		opts.PageRequest = PageRequest{Page: page, PageSize: MaxPageSize}
		resp, err := s.ListViolations(ctx, opts)
		if err != nil {
			return err
		}
		for _, v := range resp.Items {
			if !fn(v) {
				return nil
			}
		}
		read += len(resp.Items)
		if len(resp.Items) == 0 || read >= resp.Total {
			return nil
		}
	}
	return nil
}

// GetViolation searches the violation pages for id; the backend has no
// single-violation endpoint.
func (s *SLAService) GetViolation(ctx context.Context, id int) (*SLAViolation, error) {
	var found *SLAViolation
	err := s.EachViolation(ctx, ViolationListOptions{}, func(v SLAViolation) bool {
		if v.ID == id {
			found = &v
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &HTTPError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("violation %d not found", id)}
	}
	return found, nil
}

func (s *SLAService) UpdateViolation(ctx context.Context, id int, update ViolationUpdate) error {
	return s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/sla/v2/violations/%d", id), update, nil)
}

// BatchUpdateViolations applies the same update to every id. It stops at the
// first failure.
func (s *SLAService) BatchUpdateViolations(ctx context.Context, ids []int, update ViolationUpdate) error {
	if len(ids) == 0 {
		return errors.New("no violations selected")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.UpdateViolation(gctx, id, update); err != nil {
				return fmt.Errorf("violation %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *SLAService) ComplianceReport(ctx context.Context, startDate, endDate string) (*SLAComplianceReport, error) {
	if startDate == "" || endDate == "" {
		return nil, errors.New("start and end date are required")
	}
	endpoint, err := withQuery("api/v1/sla/compliance-report", struct {
		StartDate string `url:"start_date"`
		EndDate   string `url:"end_date"`
	}{startDate, endDate})
	if err != nil {
		return nil, err
	}
	var report SLAComplianceReport
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *SLAService) CheckCompliance(ctx context.Context, ticketID int) error {
	return s.client.do(ctx, http.MethodPost, fmt.Sprintf("api/v1/sla/v2/check-compliance/%d", ticketID), nil, nil)
}

func (s *SLAService) Stats(ctx context.Context) (*SLAStats, error) {
	var stats SLAStats
	if err := s.client.do(ctx, http.MethodGet, "api/v1/sla/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Monitoring fetches the monitoring summary and fills in the rates the
// backend leaves out.
func (s *SLAService) Monitoring(ctx context.Context, req MonitoringRequest) (*SLAMonitoring, error) {
	var raw rawMonitoring
	if err := s.client.do(ctx, http.MethodPost, "api/v1/sla/v2/monitoring", req, &raw); err != nil {
		return nil, err
	}
	m := raw.derive()
	return &m, nil
}

func (s *SLAService) Metrics(ctx context.Context, opts SLAMetricsOptions) (*SLAMetrics, error) {
	endpoint, err := withQuery("api/v1/sla/v2/metrics", opts)
	if err != nil {
		return nil, err
	}
	var metrics SLAMetrics
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

func (s *SLAService) Alerts(ctx context.Context) ([]SLAAlert, error) {
	var alerts []SLAAlert
	if err := s.client.do(ctx, http.MethodGet, "api/v1/sla/alerts", nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *SLAService) TriggerMonitor(ctx context.Context) (*MonitorRun, error) {
	var run MonitorRun
	if err := s.client.do(ctx, http.MethodPost, "api/v1/sla/monitor", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SLAService) ListAlertRules(ctx context.Context, opts AlertRuleListOptions) ([]SLAAlertRule, error) {
	endpoint, err := withQuery("api/v1/sla/alert-rules", opts)
	if err != nil {
		return nil, err
	}
	var rules []SLAAlertRule
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *SLAService) GetAlertRule(ctx context.Context, id int) (*SLAAlertRule, error) {
	var rule SLAAlertRule
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/sla/v2/alert-rules/%d", id), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *SLAService) CreateAlertRule(ctx context.Context, rule SLAAlertRule) (*SLAAlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	var created SLAAlertRule
	if err := s.client.do(ctx, http.MethodPost, "api/v1/sla/alert-rules", rule, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *SLAService) UpdateAlertRule(ctx context.Context, id int, rule SLAAlertRule) (*SLAAlertRule, error) {
	var updated SLAAlertRule
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/sla/v2/alert-rules/%d", id), rule, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *SLAService) DeleteAlertRule(ctx context.Context, id int) error {
	return s.client.do(ctx, http.MethodDelete, fmt.Sprintf("api/v1/sla/v2/alert-rules/%d", id), nil, nil)
}

func (s *SLAService) AlertHistory(ctx context.Context, opts AlertHistoryOptions) (*Page[SLAAlertHistory], error) {
	opts.PageRequest = opts.PageRequest.Normalize()
	endpoint, err := withQuery("api/v1/sla/v2/alert-history", opts)
	if err != nil {
		return nil, err
	}
	var resp Page[SLAAlertHistory]
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
