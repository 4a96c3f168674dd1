package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

type ConfigurationItem struct {
	ID             int            `json:"id"`
	CINumber       string         `json:"ci_number,omitempty"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	CITypeID       int            `json:"ci_type_id,omitempty"`
	Status         CIStatus       `json:"status"`
	Description    string         `json:"description,omitempty"`
	Environment    string         `json:"environment,omitempty"`
	Criticality    string         `json:"criticality,omitempty"`
	Manufacturer   string         `json:"manufacturer,omitempty"`
	Model          string         `json:"model,omitempty"`
	SerialNumber   string         `json:"serial_number,omitempty"`
	AssetTag       string         `json:"asset_tag,omitempty"`
	Location       string         `json:"location,omitempty"`
	Department     string         `json:"department,omitempty"`
	Owner          string         `json:"owner,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	Hostname       string         `json:"hostname,omitempty"`
	OSType         string         `json:"os_type,omitempty"`
	OSVersion      string         `json:"os_version,omitempty"`
	PurchaseDate   *time.Time     `json:"purchase_date,omitempty"`
	PurchaseCost   float64        `json:"purchase_cost,omitempty"`
	WarrantyExpiry *time.Time     `json:"warranty_expiry,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validate checks the fields the CI form requires.
func (ci ConfigurationItem) Validate() error {
	var errs []error
	if ci.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if ci.Type == "" && ci.CITypeID == 0 {
		errs = append(errs, errors.New("type is required"))
	}
	if ci.Status != "" && !ci.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", ci.Status))
	}
	if ci.IPAddress != "" && net.ParseIP(ci.IPAddress) == nil {
		errs = append(errs, fmt.Errorf("invalid ip address %q", ci.IPAddress))
	}
	if ci.PurchaseCost < 0 {
		errs = append(errs, errors.New("purchase_cost must not be negative"))
	}
	return errors.Join(errs...)
}

type CIListOptions struct {
	PageRequest
	CITypeID int      `url:"ci_type_id,omitempty"`
	Type     string   `url:"type,omitempty"`
	Status   CIStatus `url:"status,omitempty"`
	Search   string   `url:"search,omitempty"`
}

type CIListResponse struct {
	Items []ConfigurationItem `json:"items"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Size  int                 `json:"size"`
}

type CISearchRequest struct {
	Keyword    string         `json:"keyword,omitempty"`
	CITypeID   int            `json:"ci_type_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type CMDBService struct {
	client *Client
}

func (c *Client) CMDB() *CMDBService {
	return &CMDBService{client: c}
}

func (s *CMDBService) List(ctx context.Context, opts CIListOptions) (*CIListResponse, error) {
	opts.PageRequest = opts.PageRequest.Normalize()
	endpoint, err := withQuery("api/v1/cmdb/items", opts)
	if err != nil {
		return nil, err
	}
	var resp CIListResponse
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *CMDBService) Get(ctx context.Context, id int) (*ConfigurationItem, error) {
	var ci ConfigurationItem
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/cmdb/items/%d", id), nil, &ci); err != nil {
		return nil, err
	}
	return &ci, nil
}

func (s *CMDBService) Create(ctx context.Context, ci ConfigurationItem) (*ConfigurationItem, error) {
	if err := ci.Validate(); err != nil {
		return nil, err
	}
	if ci.Status == "" {
		ci.Status = CIStatusActive
	}
	var created ConfigurationItem
	if err := s.client.do(ctx, http.MethodPost, "api/v1/cmdb/items", ci, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *CMDBService) Update(ctx context.Context, id int, ci ConfigurationItem) (*ConfigurationItem, error) {
	if ci.Status != "" && !ci.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", ci.Status)
	}
	var updated ConfigurationItem
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/cmdb/items/%d", id), ci, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *CMDBService) Delete(ctx context.Context, id int) error {
	return s.client.do(ctx, http.MethodDelete, fmt.Sprintf("api/v1/cmdb/items/%d", id), nil, nil)
}

func (s *CMDBService) Search(ctx context.Context, req CISearchRequest) ([]ConfigurationItem, error) {
	var items []ConfigurationItem
	if err := s.client.do(ctx, http.MethodPost, "api/v1/cmdb/search", req, &items); err != nil {
		return nil, err
	}
	return items, nil
}
