package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ServiceItem struct {
	ID             int           `json:"id"`
	Name           string        `json:"name"`
	Category       string        `json:"category"`
	Description    string        `json:"description"`
	CITypeID       *int          `json:"ci_type_id,omitempty"`
	CloudServiceID *int          `json:"cloud_service_id,omitempty"`
	DeliveryTime   string        `json:"delivery_time,omitempty"`
	Status         CatalogStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ServiceItemRequest is the create/update payload. Empty fields are left out
// of updates.
type ServiceItemRequest struct {
	Name           string        `json:"name,omitempty"`
	Category       string        `json:"category,omitempty"`
	Description    string        `json:"description,omitempty"`
	CITypeID       *int          `json:"ci_type_id,omitempty"`
	CloudServiceID *int          `json:"cloud_service_id,omitempty"`
	DeliveryTime   string        `json:"delivery_time,omitempty"`
	Status         CatalogStatus `json:"status,omitempty"`
}

type CatalogListOptions struct {
	Page     int           `url:"page,omitempty"`
	Size     int           `url:"size,omitempty"`
	Category string        `url:"category,omitempty"`
	Status   CatalogStatus `url:"status,omitempty"`
}

type CatalogListResponse struct {
	Catalogs []ServiceItem `json:"catalogs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	Size     int           `json:"size"`
}

type ServiceCatalogService struct {
	client *Client
}

func (c *Client) ServiceCatalogs() *ServiceCatalogService {
	return &ServiceCatalogService{client: c}
}

func (s *ServiceCatalogService) List(ctx context.Context, opts CatalogListOptions) (*CatalogListResponse, error) {
	page := PageRequest{Page: opts.Page, PageSize: opts.Size}.Normalize()
	opts.Page, opts.Size = page.Page, page.PageSize
	endpoint, err := withQuery("api/v1/service-catalogs", opts)
	if err != nil {
		return nil, err
	}
	var resp CatalogListResponse
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ServiceCatalogService) Get(ctx context.Context, id int) (*ServiceItem, error) {
	var item ServiceItem
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("api/v1/service-catalogs/%d", id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ServiceCatalogService) Create(ctx context.Context, req ServiceItemRequest) (*ServiceItem, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if req.Status == "" {
		req.Status = CatalogStatusEnabled
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("invalid catalog status %q", req.Status)
	}
	var item ServiceItem
	if err := s.client.do(ctx, http.MethodPost, "api/v1/service-catalogs", req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ServiceCatalogService) Update(ctx context.Context, id int, req ServiceItemRequest) (*ServiceItem, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("invalid catalog status %q", req.Status)
	}
	var item ServiceItem
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("api/v1/service-catalogs/%d", id), req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ServiceCatalogService) Delete(ctx context.Context, id int) error {
	return s.client.do(ctx, http.MethodDelete, fmt.Sprintf("api/v1/service-catalogs/%d", id), nil, nil)
}

func (s *ServiceCatalogService) Publish(ctx context.Context, id int) (*ServiceItem, error) {
	return s.Update(ctx, id, ServiceItemRequest{Status: CatalogStatusEnabled})
}

func (s *ServiceCatalogService) Retire(ctx context.Context, id int) (*ServiceItem, error) {
	return s.Update(ctx, id, ServiceItemRequest{Status: CatalogStatusDisabled})
}

// Clone creates a copy of an existing catalog item under a new name. The
// source status is kept.
func (s *ServiceCatalogService) Clone(ctx context.Context, id int, name string) (*ServiceItem, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load source item %d: %w", id, err)
	}
	return s.Create(ctx, ServiceItemRequest{
		Name:           name,
		Category:       src.Category,
		Description:    src.Description,
		CITypeID:       src.CITypeID,
		CloudServiceID: src.CloudServiceID,
		DeliveryTime:   src.DeliveryTime,
		Status:         src.Status,
	})
}
