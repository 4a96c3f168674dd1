package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 30 * time.Second

	headerRequestID  = "X-Request-Id"
	headerTenantID   = "X-Tenant-ID"
	headerTenantCode = "X-Tenant-Code"
)

// RefreshFunc returns a fresh access token after the server rejected the current one.
type RefreshFunc func(ctx context.Context) (string, error)

// RequestObserver is notified after every round trip. status is 0 when the
// request never reached the server.
type RequestObserver func(method, endpoint string, status int, duration time.Duration)

type Client struct {
	baseURL    *url.URL
	http       *http.Client
	userAgent  string
	timeout    time.Duration
	tenantID   string
	tenantCode string
	limiter    *rate.Limiter
	refresh    RefreshFunc
	verbose    func(format string, args ...any)
	observe    RequestObserver

	mu    sync.RWMutex
	token string
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:      &http.Client{},
		userAgent: "itsmctl",
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, errors.New("server is required")
	}
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.http.Transport = otelhttp.NewTransport(base)
	c.http.Timeout = c.timeout
	return c, nil
}

func WithServer(server string) Option {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid server %q: scheme and host are required", server)
		}
		c.baseURL = parsed
		return nil
	}
}

func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

// WithTenant sets the tenant headers sent with every request.
func WithTenant(id, code string) Option {
	return func(c *Client) error {
		c.tenantID = id
		c.tenantCode = code
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("invalid timeout %s", timeout)
		}
		if timeout > 0 {
			c.timeout = timeout
		}
		return nil
	}
}

// WithRateLimit throttles outgoing requests to qps with the given burst.
// A qps of zero disables throttling.
func WithRateLimit(qps float64, burst int) Option {
	return func(c *Client) error {
		if qps < 0 {
			return fmt.Errorf("invalid rate limit %v", qps)
		}
		if qps == 0 {
			c.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
		return nil
	}
}

// WithRefresher enables a single retry after a 401 using the token returned by fn.
func WithRefresher(fn RefreshFunc) Option {
	return func(c *Client) error {
		c.refresh = fn
		return nil
	}
}

func WithVerbose(logf func(format string, args ...any)) Option {
	return func(c *Client) error {
		c.verbose = logf
		return nil
	}
}

func WithRequestObserver(observer RequestObserver) Option {
	return func(c *Client) error {
		c.observe = observer
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.New("http client must not be nil")
		}
		// New wraps the transport; the caller's client stays untouched.
		cp := *httpClient
		c.http = &cp
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		var transport *http.Transport
		switch rt := c.http.Transport.(type) {
		case nil:
			transport = http.DefaultTransport.(*http.Transport).Clone()
		case *http.Transport:
			transport = rt.Clone()
		default:
			return fmt.Errorf("cannot apply TLS settings to transport %T", rt)
		}
		transport.TLSClientConfig = tlsConfig
		cp := *c.http
		cp.Transport = transport
		c.http = &cp
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure} //nolint:gosec // opt-in via --insecure-skip-tls-verify
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// Token returns the access token currently used by the client.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type requestIDKey struct{}

// WithRequestID pins the X-Request-Id used for calls made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// withQuery appends the url-tagged fields of opts to endpoint.
func withQuery(endpoint string, opts any) (string, error) {
	values, err := query.Values(opts)
	if err != nil {
		return "", fmt.Errorf("failed to encode query: %w", err)
	}
	if encoded := values.Encode(); encoded != "" {
		return endpoint + "?" + encoded, nil
	}
	return endpoint, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	fullURL := *c.baseURL
	parsedEndpoint, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	fullURL.Path = path.Join(fullURL.Path, parsedEndpoint.Path)
	fullURL.RawQuery = parsedEndpoint.RawQuery

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	requestID := requestIDFrom(ctx)
	err = c.roundTrip(ctx, method, fullURL.String(), endpoint, requestID, payload, out)
	var httpErr *HTTPError
	if c.refresh == nil || !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	token, refreshErr := c.refresh(ctx)
	if refreshErr != nil {
		return fmt.Errorf("%w (token refresh failed: %v)", err, refreshErr)
	}
	c.setToken(token)
	return c.roundTrip(ctx, method, fullURL.String(), endpoint, requestID, payload, out)
}

func (c *Client) roundTrip(ctx context.Context, method, target, endpoint, requestID string, payload []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRequestID, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.tenantID != "" {
		req.Header.Set(headerTenantID, c.tenantID)
	}
	if c.tenantCode != "" {
		req.Header.Set(headerTenantCode, c.tenantCode)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.trace(method, target, endpoint, 0, elapsed, requestID)
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.trace(method, target, endpoint, resp.StatusCode, elapsed, requestID)

	if rid := resp.Header.Get(headerRequestID); rid != "" {
		requestID = rid
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp, data, requestID)
	}
	return decodeBody(data, requestID, out)
}

func (c *Client) trace(method, target, endpoint string, status int, elapsed time.Duration, requestID string) {
	if c.observe != nil {
		c.observe(method, endpointLabel(endpoint), status, elapsed)
	}
	if c.verbose != nil {
		c.verbose("%s %s -> %d (%s) rid=%s", method, target, status, elapsed.Round(time.Millisecond), requestID)
	}
}

// endpointLabel strips the query and numeric path segments so metrics keep a
// bounded label set.
func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeBody unwraps the {code, message, data} envelope. Bodies without a
// code field are decoded as-is.
func decodeBody(data []byte, requestID string, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	var env envelope
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &env) == nil && env.Code != nil {
		if *env.Code != 0 {
			return &APIError{Code: *env.Code, Message: env.Message, RequestID: requestID}
		}
		if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, body []byte, requestID string) error {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &apiErr)
	}
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = strings.TrimSpace(apiErr.Error)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status
	}
	return &HTTPError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: msg, RequestID: requestID}
}

type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
	RequestID  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s%s", e.StatusCode, e.Message, ridSuffix(e.RequestID))
}

// APIError is a successful HTTP exchange whose envelope carried a non-zero code.
type APIError struct {
	Code      int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("api error (code %d): %s%s", e.Code, msg, ridSuffix(e.RequestID))
}

func ridSuffix(id string) string {
	if id == "" {
		return ""
	}
	return " [RID: " + id + "]"
}

func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}
