// Package client provides the SaleSys exclude-list HTTP client with bearer
// authentication, proxy routing, error classification and metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesys_requests_total",
		Help: "Total SaleSys API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesys_request_duration_seconds",
		Help:    "SaleSys API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesys_errors_total",
		Help: "Total SaleSys API errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the upstream exclude-lists API.
	DefaultBaseURL = "https://app.salesys.se/api/contacts/exclude-lists-v1"

	// DefaultProxyURL is the forwarding endpoint used by the hosted tool.
	DefaultProxyURL = "https://salesys.se/api/tools/proxy.php"

	endpointLists   = "lists"
	endpointStrings = "strings"

	maxResponseBytes = 32 << 20
)

// Client talks to the exclude-lists API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     Config
	baseURL    *url.URL
	proxyURL   *url.URL
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Token is the bearer credential attached to every request (REQUIRED).
	Token string

	// BaseURL is the exclude-lists endpoint root.
	BaseURL string

	// ProxyURL routes every call through a forwarding endpoint as ?url=<target>.
	// Empty means requests go directly to BaseURL.
	ProxyURL string

	// Timeout per HTTP request.
	Timeout time.Duration

	// UserAgent header, optional.
	UserAgent string
}

// DefaultConfig returns the configuration used by the hosted tool.
func DefaultConfig(token string) Config {
	return Config{
		Token:     token,
		BaseURL:   DefaultBaseURL,
		ProxyURL:  DefaultProxyURL,
		Timeout:   30 * time.Second,
		UserAgent: "salesys-blacklist/0.1.0",
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return nil, fmt.Errorf("bearer token is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	var proxy *url.URL
	if cfg.ProxyURL != "" {
		proxy, err = url.Parse(cfg.ProxyURL)
		if err != nil || proxy.Scheme == "" || proxy.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", cfg.ProxyURL)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "salesys-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:   cfg,
		baseURL:  base,
		proxyURL: proxy,
		logger:   logger,
	}, nil
}

// Do sends the request, rewriting it through the proxy when one is configured
// and attaching the bearer credential. Any non-2xx status is returned as a
// *RequestError and the response body is closed.
func (c *Client) Do(req *http.Request, endpoint string) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.proxyURL != nil {
		req.URL = c.routeThroughProxy(req.URL)
		req.Host = req.URL.Host
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Bool("proxied", c.proxyURL != nil).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &RequestError{
			Endpoint: endpoint,
			Class:    class,
			Message:  "request could not be completed",
			Err:      err,
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(class)).Inc()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")

		return nil, &RequestError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    statusLine(resp),
		}
	}

	return resp, nil
}

// routeThroughProxy wraps target as the url query parameter of the proxy endpoint.
func (c *Client) routeThroughProxy(target *url.URL) *url.URL {
	routed := *c.proxyURL
	q := routed.Query()
	q.Set("url", target.String())
	routed.RawQuery = q.Encode()
	return &routed
}

// getJSON performs a GET and decodes the JSON body into target.
func (c *Client) getJSON(ctx context.Context, target *url.URL, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &RequestError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "invalid response body",
			Err:        err,
		}
	}
	return nil
}

// ListBlacklists fetches every exclude list visible to the token.
func (c *Client) ListBlacklists(ctx context.Context) ([]blacklist.List, error) {
	target := *c.baseURL

	var lists []blacklist.List
	if err := c.getJSON(ctx, &target, endpointLists, &lists); err != nil {
		return nil, err
	}

	c.logger.Info().Int("lists", len(lists)).Msg("Fetched blacklists")
	return lists, nil
}

// FetchStrings fetches up to count strings of the given lists starting at offset.
// A result shorter than count means the lists are exhausted.
func (c *Client) FetchStrings(ctx context.Context, listIDs []string, offset, count int) ([]blacklist.Entry, error) {
	if len(listIDs) == 0 {
		return nil, fmt.Errorf("at least one list id is required")
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0 (got %d)", offset)
	}
	if count <= 0 {
		return nil, fmt.Errorf("count must be > 0 (got %d)", count)
	}

	target := c.StringsURL(listIDs, offset, count)

	var entries []blacklist.Entry
	if err := c.getJSON(ctx, target, endpointStrings, &entries); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Strs("list_ids", listIDs).
		Int("offset", offset).
		Int("count", count).
		Int("returned", len(entries)).
		Msg("Fetched strings page")

	return entries, nil
}

// StringsURL builds the upstream strings URL. List ids are comma separated
// and only global entries of the selected lists themselves are included.
func (c *Client) StringsURL(listIDs []string, offset, count int) *url.URL {
	escaped := make([]string, len(listIDs))
	for i, id := range listIDs {
		escaped[i] = url.QueryEscape(id)
	}

	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + "/strings"
	target.RawQuery = fmt.Sprintf("listIds=%s&count=%d&includeGlobal=false&isNormalizedString=false&offset=%d",
		strings.Join(escaped, ","), count, offset)
	return &target
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrorClassAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

// statusLine renders "<code> <reason>" like the upstream status line.
func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
