package client

import (
	"context"
	"errors"
	"net/http"
)

type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TenantCode string `json:"tenant_code,omitempty"`
}

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID int    `json:"tenant_id"`
}

type Tenant struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
}

type LoginResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	User         *User   `json:"user,omitempty"`
	Tenant       *Tenant `json:"tenant,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}

type AuthService struct {
	client *Client
}

func (c *Client) Auth() *AuthService {
	return &AuthService{client: c}
}

// Login exchanges credentials for an access and refresh token pair. The
// client keeps using the returned access token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}
	var resp LoginResponse
	if err := s.client.do(ctx, http.MethodPost, "api/v1/login", req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("login response did not contain an access token")
	}
	s.client.setToken(resp.AccessToken)
	return &resp, nil
}

// Refresh returns a new access token. The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", errors.New("refresh token is required")
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	payload := map[string]string{"refresh_token": refreshToken}
	if err := s.client.do(ctx, http.MethodPost, "api/v1/refresh-token", payload, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("refresh response did not contain an access token")
	}
	return resp.AccessToken, nil
}

func (s *AuthService) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := s.client.do(ctx, http.MethodGet, "api/v1/healthz", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}
