package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	RequestStatusSubmitted        = "submitted"
	RequestStatusManagerApproved  = "manager_approved"
	RequestStatusITApproved       = "it_approved"
	RequestStatusSecurityApproved = "security_approved"
	RequestStatusRejected         = "rejected"
	RequestStatusCompleted        = "completed"
)

var dataClassifications = []string{"public", "internal", "confidential"}

type ServiceRequest struct {
	ID                 int            `json:"id"`
	CatalogID          int            `json:"catalog_id"`
	RequesterID        int            `json:"requester_id"`
	Title              string         `json:"title"`
	Reason             string         `json:"reason,omitempty"`
	Status             string         `json:"status"`
	CurrentLevel       int            `json:"current_level,omitempty"`
	TotalLevels        int            `json:"total_levels,omitempty"`
	FormData           map[string]any `json:"form_data,omitempty"`
	ComplianceAck      bool           `json:"compliance_ack"`
	DataClassification string         `json:"data_classification,omitempty"`
	NeedsPublicIP      bool           `json:"needs_public_ip"`
	SourceIPWhitelist  []string       `json:"source_ip_whitelist,omitempty"`
	CostCenter         string         `json:"cost_center,omitempty"`
	ExpireAt           *time.Time     `json:"expire_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type CreateServiceRequest struct {
	CatalogID          int            `json:"catalog_id"`
	Title              string         `json:"title"`
	Reason             string         `json:"reason,omitempty"`
	FormData           map[string]any `json:"form_data"`
	ComplianceAck      bool           `json:"compliance_ack"`
	DataClassification string         `json:"data_classification"`
	NeedsPublicIP      bool           `json:"needs_public_ip"`
	SourceIPWhitelist  []string       `json:"source_ip_whitelist,omitempty"`
	CostCenter         string         `json:"cost_center,omitempty"`
	ExpireAt           *time.Time     `json:"expire_at,omitempty"`
}

func (r CreateServiceRequest) Validate() error {
	var errs []error
	if r.CatalogID <= 0 {
		errs = append(errs, errors.New("catalog_id is required"))
	}
	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if !r.ComplianceAck {
		errs = append(errs, errors.New("compliance acknowledgement required"))
	}
	valid := false
	for _, c := range dataClassifications {
		if r.DataClassification == c {
			valid = true
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("data_classification must be one of %s", strings.Join(dataClassifications, ", ")))
	}
	if r.NeedsPublicIP && len(r.SourceIPWhitelist) == 0 {
		errs = append(errs, errors.New("source ip whitelist required for public ip"))
	}
	for _, entry := range r.SourceIPWhitelist {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			errs = append(errs, fmt.Errorf("invalid whitelist entry %q", entry))
		}
	}
	if r.ExpireAt == nil {
		errs = append(errs, errors.New("expiration date required"))
	}
	return errors.Join(errs...)
}

type ServiceRequestListOptions struct {
	Page   int    `url:"page,omitempty"`
	Size   int    `url:"size,omitempty"`
	Status string `url:"status,omitempty"`
}

type ServiceRequestListResponse struct {
	Requests []ServiceRequest `json:"requests"`
	Total    int              `json:"total"`
}

type approvalRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment,omitempty"`
}

type statusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

type ServiceRequestService struct {
	client *Client
}

func (c *Client) ServiceRequests() *ServiceRequestService {
	return &ServiceRequestService{client: c}
}

// Mine lists the requests raised by the authenticated user.
func (s *ServiceRequestService) Mine(ctx context.Context, opts ServiceRequestListOptions) (*ServiceRequestListResponse, error) {
	page := PageRequest{Page: opts.Page, PageSize: opts.Size}.Normalize()
	opts.Page, opts.Size = page.Page, page.PageSize
	endpoint, err := withQuery("api/v1/service-requests/me", opts)
	if err != nil {
		return nil, err
	}
	var resp ServiceRequestListResponse
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ServiceRequestService) Get(ctx context.Context, id int) (*ServiceRequest, error) {
	var req ServiceRequest
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/service-requests/%d", id), nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *ServiceRequestService) Create(ctx context.Context, req CreateServiceRequest) (*ServiceRequest, error) {
	if req.DataClassification == "" {
		req.DataClassification = "internal"
	}
	if req.FormData == nil {
		req.FormData = map[string]any{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var created ServiceRequest
	if err := s.client.do(ctx, http.MethodPost, "api/v1/service-requests", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *ServiceRequestService) Approve(ctx context.Context, id int, comment string) error {
	return s.client.do(ctx, http.MethodPost, fmt.Sprintf("api/v1/service-requests/%d/approvals", id),
		approvalRequest{Action: "approve", Comment: comment}, nil)
}

func (s *ServiceRequestService) Reject(ctx context.Context, id int, reason string) error {
	if reason == "" {
		return errors.New("a reason is required to reject a request")
	}
	return s.client.do(ctx, http.MethodPost, fmt.Sprintf("api/v1/service-requests/%d/approvals", id),
		approvalRequest{Action: "reject", Comment: reason}, nil)
}

func (s *ServiceRequestService) Complete(ctx context.Context, id int, notes string) error {
	return s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/service-requests/%d/status", id),
		statusRequest{Status: RequestStatusCompleted, Comment: notes}, nil)
}

// ErrCancelUnsupported is returned by Cancel; the backend has no cancelled state.
var ErrCancelUnsupported = errors.New("cancelling service requests is not supported by the server")

func (s *ServiceRequestService) Cancel(_ context.Context, id int, _ string) error {
	return fmt.Errorf("request %d: %w", id, ErrCancelUnsupported)
}
