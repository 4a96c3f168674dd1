package client

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest is embedded by list option structs; go-querystring flattens it
// into page and page_size parameters.
type PageRequest struct {
	Page     int `url:"page,omitempty"`
	PageSize int `url:"page_size,omitempty"`
}

// Normalize clamps the request to the range accepted by the backend.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// Page is the generic list payload used by most /api/v1 list endpoints.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}
