package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

type KPIMetric struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Color       string  `json:"color,omitempty"`
	Trend       string  `json:"trend"`
	Change      float64 `json:"change"`
	ChangeType  string  `json:"changeType"`
	Description string  `json:"description,omitempty"`
	Target      float64 `json:"target,omitempty"`
	Alert       string  `json:"alert,omitempty"`
}

type TrendPoint struct {
	Date       string `json:"date"`
	Open       int    `json:"open"`
	InProgress int    `json:"inProgress"`
	Resolved   int    `json:"resolved"`
	Closed     int    `json:"closed"`
	NewTickets int    `json:"newTickets,omitempty"`
}

type DistributionItem struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Color    string `json:"color,omitempty"`
}

type ServiceSLA struct {
	Service string  `json:"service"`
	Target  float64 `json:"target"`
	Actual  float64 `json:"actual"`
}

// Met reports whether the service reached its target.
func (s ServiceSLA) Met() bool {
	return s.Actual >= s.Target
}

type SatisfactionPoint struct {
	Month     string  `json:"month"`
	Rating    float64 `json:"rating"`
	Responses int     `json:"responses"`
}

type Activity struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	User        string `json:"user"`
	Timestamp   string `json:"timestamp"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`
}

type DashboardOverview struct {
	KPIMetrics           []KPIMetric         `json:"kpiMetrics"`
	TicketTrend          []TrendPoint        `json:"ticketTrend"`
	IncidentDistribution []DistributionItem  `json:"incidentDistribution"`
	SLAData              []ServiceSLA        `json:"slaData"`
	SatisfactionData     []SatisfactionPoint `json:"satisfactionData"`
	RecentActivities     []Activity          `json:"recentActivities"`
}

type DashboardService struct {
	client *Client
}

func (c *Client) Dashboard() *DashboardService {
	return &DashboardService{client: c}
}

func (s *DashboardService) Overview(ctx context.Context) (*DashboardOverview, error) {
	var overview DashboardOverview
	if err := s.client.do(ctx, http.MethodGet, "api/v1/dashboard/overview", nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

func (s *DashboardService) KPIMetrics(ctx context.Context) ([]KPIMetric, error) {
	var metrics []KPIMetric
	if err := s.client.do(ctx, http.MethodGet, "api/v1/dashboard/kpi-metrics", nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func (s *DashboardService) TicketTrend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	var trend []TrendPoint
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/dashboard/ticket-trend?days=%d", days), nil, &trend); err != nil {
		return nil, err
	}
	return trend, nil
}

func (s *DashboardService) IncidentDistribution(ctx context.Context) ([]DistributionItem, error) {
	var items []DistributionItem
	if err := s.client.do(ctx, http.MethodGet, "api/v1/dashboard/incident-distribution", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *DashboardService) SLAData(ctx context.Context) ([]ServiceSLA, error) {
	var data []ServiceSLA
	if err := s.client.do(ctx, http.MethodGet, "api/v1/dashboard/sla-data", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DashboardService) SatisfactionData(ctx context.Context, months int) ([]SatisfactionPoint, error) {
	if months <= 0 {
		months = 4
	}
	var data []SatisfactionPoint
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/dashboard/satisfaction-data?months=%d", months), nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DashboardService) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 10
	}
	var activities []Activity
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/dashboard/recent-activities?limit=%d", limit), nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// TicketStats is the ticket summary shown on the dashboard.
func (s *DashboardService) TicketStats(ctx context.Context) (*TicketStats, error) {
	return s.client.Tickets().Stats(ctx)
}

type AggregateOptions struct {
	Days   int
	Months int
	Limit  int
}

// Dashboard is the result of Aggregate. Sections that failed stay empty and
// are listed in Errors.
type Dashboard struct {
	KPIMetrics           []KPIMetric         `json:"kpi_metrics"`
	TicketTrend          []TrendPoint        `json:"ticket_trend"`
	IncidentDistribution []DistributionItem  `json:"incident_distribution"`
	SLAData              []ServiceSLA        `json:"sla_data"`
	SatisfactionData     []SatisfactionPoint `json:"satisfaction_data"`
	RecentActivities     []Activity          `json:"recent_activities"`
	TicketStats          *TicketStats        `json:"ticket_stats,omitempty"`
	Errors               map[string]string   `json:"errors,omitempty"`
}

// Aggregate loads every dashboard section concurrently. A failing section
// never cancels the others; the returned error joins all section failures.
func (s *DashboardService) Aggregate(ctx context.Context, opts AggregateOptions) (*Dashboard, error) {
	d := &Dashboard{Errors: map[string]string{}}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	run := func(section string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				d.Errors[section] = err.Error()
				errs = append(errs, fmt.Errorf("%s: %w", section, err))
				mu.Unlock()
			}
		}()
	}

	// Each closure writes only its own field.
	run("kpi_metrics", func() (err error) {
		d.KPIMetrics, err = s.KPIMetrics(ctx)
		return err
	})
	run("ticket_trend", func() (err error) {
		d.TicketTrend, err = s.TicketTrend(ctx, opts.Days)
		return err
	})
	run("incident_distribution", func() (err error) {
		d.IncidentDistribution, err = s.IncidentDistribution(ctx)
		return err
	})
	run("sla_data", func() (err error) {
		d.SLAData, err = s.SLAData(ctx)
		return err
	})
	run("satisfaction_data", func() (err error) {
		d.SatisfactionData, err = s.SatisfactionData(ctx, opts.Months)
		return err
	})
	run("recent_activities", func() (err error) {
		d.RecentActivities, err = s.RecentActivities(ctx, opts.Limit)
		return err
	})
	run("ticket_stats", func() (err error) {
		d.TicketStats, err = s.TicketStats(ctx)
		return err
	})
	wg.Wait()

	// Goroutines finish in any order.
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return d, errors.Join(errs...)
}
