package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeEnvelope answers with the backend's success envelope.
func writeEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "success", "data": data}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(append([]Option{WithServer(server.URL)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "missing server",
			opts:    []Option{},
			wantErr: true,
		},
		{
			name:    "server without scheme",
			opts:    []Option{WithServer("itsm.example.com")},
			wantErr: true,
		},
		{
			name: "valid config",
			opts: []Option{
				WithServer("https://example.com"),
				WithToken("test-token"),
			},
			wantErr: false,
		},
		{
			name: "with custom user agent",
			opts: []Option{
				WithServer("https://example.com"),
				WithUserAgent("test-agent"),
			},
			wantErr: false,
		},
		{
			name: "negative timeout",
			opts: []Option{
				WithServer("https://example.com"),
				WithTimeout(-time.Second),
			},
			wantErr: true,
		},
		{
			name: "missing ca file",
			opts: []Option{
				WithServer("https://example.com"),
				WithTLSConfig("/does/not/exist.pem", false),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
			}
		})
	}
}

func TestClientDo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "7", r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant-Code"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		writeEnvelope(t, w, map[string]string{"status": "ok"})
	}, WithToken("test-token"), WithUserAgent("test-agent"), WithTenant("7", "acme"))

	var result map[string]string
	err := c.do(context.Background(), http.MethodGet, "/test", nil, &result)
	require.NoError(t, err)
	require.Equal(t, "ok", result["status"])
}

func TestClientDoBareBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	var result map[string]string
	require.NoError(t, c.do(context.Background(), http.MethodGet, "/test", nil, &result))
	require.Equal(t, "ok", result["status"])
}

func TestClientDoRequestID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-123", r.Header.Get("X-Request-Id"))
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 4001, "message": "bad input"})
	})

	err := c.do(WithRequestID(context.Background(), "req-123"), http.MethodGet, "/test", nil, nil)
	require.Error(t, err)
	require.Equal(t, "request failed (400): bad input [RID: req-123]", err.Error())
}

func TestClientDoError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "server-rid")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	err := c.do(context.Background(), http.MethodGet, "/missing", nil, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	require.Contains(t, httpErr.Message, "not found")
	require.Equal(t, "server-rid", httpErr.RequestID)
	require.True(t, IsNotFound(err))
}

func TestClientDoEnvelopeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 2001, "message": "ticket locked"})
	})

	err := c.do(context.Background(), http.MethodGet, "/tickets/1", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 2001, apiErr.Code)
	assert.Contains(t, err.Error(), "api error (code 2001): ticket locked")
}

func TestClientRefreshOn401(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 401, "message": "token expired"})
			return
		}
		writeEnvelope(t, w, map[string]string{"status": "ok"})
	}, WithToken("stale"), WithRefresher(func(context.Context) (string, error) {
		return "fresh", nil
	}))

	var result map[string]string
	require.NoError(t, c.do(context.Background(), http.MethodGet, "/test", nil, &result))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "fresh", c.Token())
}

func TestClientRefreshRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, WithToken("stale"), WithRefresher(func(context.Context) (string, error) {
		return "still-bad", nil
	}))

	err := c.do(context.Background(), http.MethodGet, "/test", nil, nil)
	require.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientRefreshFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, WithRefresher(func(context.Context) (string, error) {
		return "", errors.New("refresh token expired")
	}))

	err := c.do(context.Background(), http.MethodGet, "/test", nil, nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "token refresh failed: refresh token expired")
}

func TestClientRequestObserver(t *testing.T) {
	var gotEndpoint string
	var gotStatus int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, nil)
	}, WithRequestObserver(func(method, endpoint string, status int, _ time.Duration) {
		gotEndpoint = endpoint
		gotStatus = status
	}))

	require.NoError(t, c.do(context.Background(), http.MethodGet, "api/v1/tickets/42/activity?x=1", nil, nil))
	assert.Equal(t, "/api/v1/tickets/:id/activity", gotEndpoint)
	assert.Equal(t, http.StatusOK, gotStatus)
}

func TestHTTPError(t *testing.T) {
	err := &HTTPError{
		StatusCode: http.StatusForbidden,
		Message:    "access denied",
	}
	require.Equal(t, "request failed (403): access denied", err.Error())
}

func TestPageRequestNormalize(t *testing.T) {
	assert.Equal(t, PageRequest{Page: 1, PageSize: DefaultPageSize}, PageRequest{}.Normalize())
	assert.Equal(t, PageRequest{Page: 3, PageSize: MaxPageSize}, PageRequest{Page: 3, PageSize: 500}.Normalize())
	assert.Equal(t, PageRequest{Page: 2, PageSize: 25}, PageRequest{Page: 2, PageSize: 25}.Normalize())
}

func TestWithHTTPClientIsNotModified(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, map[string]string{"status": "ok"})
	}))
	t.Cleanup(server.Close)

	transport := &http.Transport{}
	caller := &http.Client{Transport: transport, Timeout: time.Minute}

	c, err := New(
		WithServer(server.URL),
		WithHTTPClient(caller),
		WithTLSConfig("", true),
		WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.Same(t, transport, caller.Transport)
	assert.Equal(t, time.Minute, caller.Timeout)
	assert.Nil(t, transport.TLSClientConfig)

	var out map[string]string
	require.NoError(t, c.do(context.Background(), http.MethodGet, "healthz", nil, &out))
	assert.Equal(t, "ok", out["status"])
}

type customRoundTripper struct{}

func (customRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("unused")
}

func TestWithTLSConfigRejectsCustomTransport(t *testing.T) {
	_, err := New(
		WithServer("https://itsm.example.com"),
		WithHTTPClient(&http.Client{Transport: customRoundTripper{}}),
		WithTLSConfig("", true),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot apply TLS settings")
}
