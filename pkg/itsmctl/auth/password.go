package auth

import (
	"context"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

// PasswordLogin signs in against the backend login endpoint and returns the
// token pair ready for storage.
func PasswordLogin(ctx context.Context, c *client.Client, req client.LoginRequest) (StoredToken, *client.LoginResponse, error) {
	resp, err := c.Auth().Login(ctx, req)
	if err != nil {
		return StoredToken{}, nil, err
	}
	stored := StoredToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       TokenExpiry(resp.AccessToken),
		Source:       SourcePassword,
		Username:     req.Username,
	}
	return stored, resp, nil
}

// BackendRefresher refreshes through the backend refresh-token endpoint.
func BackendRefresher(c *client.Client) RefreshFunc {
	return c.Auth().Refresh
}
