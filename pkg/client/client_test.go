package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/salesys-blacklist/internal/testutil"
	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/rs/zerolog"
)

const testToken = "test-token"

func newDirectClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig(testToken)
	cfg.BaseURL = baseURL
	cfg.ProxyURL = ""

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	c.logger = zerolog.Nop()
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("abc"),
			expectError: false,
		},
		{
			name: "no proxy",
			config: Config{
				Token:   "abc",
				BaseURL: DefaultBaseURL,
			},
			expectError: false,
		},
		{
			name:        "empty token",
			config:      DefaultConfig("   "),
			expectError: true,
			errorMsg:    "bearer token is required",
		},
		{
			name: "empty base url",
			config: Config{
				Token: "abc",
			},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name: "relative base url",
			config: Config{
				Token:   "abc",
				BaseURL: "/api/contacts",
			},
			expectError: true,
			errorMsg:    `invalid base url "/api/contacts"`,
		},
		{
			name: "invalid proxy url",
			config: Config{
				Token:    "abc",
				BaseURL:  DefaultBaseURL,
				ProxyURL: "proxy.php",
			},
			expectError: true,
			errorMsg:    `invalid proxy url "proxy.php"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("abc")

	if cfg.Token != "abc" {
		t.Errorf("Token = %q, want abc", cfg.Token)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.ProxyURL != DefaultProxyURL {
		t.Errorf("ProxyURL = %q, want %q", cfg.ProxyURL, DefaultProxyURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: io.EOF, expected: ErrorClassNetwork},
		{name: "unauthorized", statusCode: 401, expected: ErrorClassAuth},
		{name: "forbidden", statusCode: 403, expected: ErrorClassAuth},
		{name: "not found", statusCode: 404, expected: ErrorClassClient},
		{name: "too many requests", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "bad gateway", statusCode: 502, expected: ErrorClassServer},
		{name: "redirect", statusCode: 302, expected: ErrorClassUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}

			if got := client.classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStringsURL(t *testing.T) {
	c := newDirectClient(t, "https://app.salesys.se/api/contacts/exclude-lists-v1/")

	got := c.StringsURL([]string{"A", "B"}, 100, 50).String()
	want := "https://app.salesys.se/api/contacts/exclude-lists-v1/strings?listIds=A,B&count=50&includeGlobal=false&isNormalizedString=false&offset=100"
	if got != want {
		t.Errorf("StringsURL() = %q, want %q", got, want)
	}
}

func TestListBlacklists(t *testing.T) {
	mock := testutil.NewMockSaleSys(testToken)
	defer mock.Close()
	mock.SetLists(
		blacklist.List{ID: "A", Name: "Spam", OrganizationID: "org-1"},
		blacklist.List{ID: "B", Name: "VIP", IsGlobal: true, OrganizationID: "org-1"},
	)

	c := newDirectClient(t, mock.BaseURL())

	lists, err := c.ListBlacklists(context.Background())
	if err != nil {
		t.Fatalf("ListBlacklists() error: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("len(lists) = %d, want 2", len(lists))
	}
	if lists[1].Name != "VIP" || !lists[1].IsGlobal {
		t.Errorf("lists[1] = %+v", lists[1])
	}

	hdr := mock.LastRequestHeader
	if hdr.Get("Authorization") != "Bearer "+testToken {
		t.Errorf("Authorization = %q", hdr.Get("Authorization"))
	}
	if hdr.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", hdr.Get("Content-Type"))
	}
}

func TestFetchStrings_Pages(t *testing.T) {
	mock := testutil.NewMockSaleSys(testToken)
	defer mock.Close()
	mock.SetStrings("A", testutil.Entries("A", 73))

	c := newDirectClient(t, mock.BaseURL())
	ctx := context.Background()

	first, err := c.FetchStrings(ctx, []string{"A"}, 0, 50)
	if err != nil {
		t.Fatalf("FetchStrings(0) error: %v", err)
	}
	if len(first) != 50 {
		t.Errorf("len(first) = %d, want 50", len(first))
	}

	second, err := c.FetchStrings(ctx, []string{"A"}, 50, 50)
	if err != nil {
		t.Fatalf("FetchStrings(50) error: %v", err)
	}
	if len(second) != 23 {
		t.Errorf("len(second) = %d, want 23", len(second))
	}
	if second[0].Value != "+46700000050" || second[0].ListID != "A" {
		t.Errorf("second[0] = %+v", second[0])
	}

	reqs := mock.StringsRequests
	if len(reqs) != 2 || reqs[1].Offset != 50 || reqs[1].Count != 50 {
		t.Errorf("StringsRequests = %+v", reqs)
	}
}

func TestFetchStrings_InvalidArguments(t *testing.T) {
	c := newDirectClient(t, "http://127.0.0.1:1/api")
	ctx := context.Background()

	if _, err := c.FetchStrings(ctx, nil, 0, 50); err == nil {
		t.Error("expected error for empty list ids")
	}
	if _, err := c.FetchStrings(ctx, []string{"A"}, -1, 50); err == nil {
		t.Error("expected error for negative offset")
	}
	if _, err := c.FetchStrings(ctx, []string{"A"}, 0, 0); err == nil {
		t.Error("expected error for zero count")
	}
}

func TestDo_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantClass ErrorClass
		wantMsg   string
	}{
		{name: "unauthorized", status: 401, wantClass: ErrorClassAuth, wantMsg: "API request failed: 401 Unauthorized"},
		{name: "server error", status: 500, wantClass: ErrorClassServer, wantMsg: "API request failed: 500 Internal Server Error"},
		{name: "rate limited", status: 429, wantClass: ErrorClassRateLimit, wantMsg: "API request failed: 429 Too Many Requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := newDirectClient(t, server.URL+"/api")
			_, err := c.ListBlacklists(context.Background())

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("error = %v, want *RequestError", err)
			}
			if reqErr.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", reqErr.Class, tt.wantClass)
			}
			if reqErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, tt.status)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL + "/api"
	server.Close()

	c := newDirectClient(t, baseURL)
	_, err := c.FetchStrings(context.Background(), []string{"A"}, 0, 50)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.Class != ErrorClassNetwork {
		t.Errorf("Class = %q, want network", reqErr.Class)
	}
	if reqErr.Err == nil {
		t.Error("network error should wrap the transport error")
	}
}

func TestDo_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	c := newDirectClient(t, server.URL+"/api")
	_, err := c.ListBlacklists(context.Background())

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Class != ErrorClassDecode {
		t.Fatalf("error = %v, want decode RequestError", err)
	}
}

func TestDo_RoutesThroughProxy(t *testing.T) {
	var gotTarget, gotAuth string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer proxy.Close()

	cfg := DefaultConfig(testToken)
	cfg.ProxyURL = proxy.URL + "/api/tools/proxy.php"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	c.logger = zerolog.Nop()

	if _, err := c.FetchStrings(context.Background(), []string{"A", "B"}, 50, 50); err != nil {
		t.Fatalf("FetchStrings() error: %v", err)
	}

	target, err := url.Parse(gotTarget)
	if err != nil {
		t.Fatalf("proxy received unparsable url %q", gotTarget)
	}
	if target.Host != "app.salesys.se" || !strings.HasSuffix(target.Path, "/exclude-lists-v1/strings") {
		t.Errorf("proxied target = %q", gotTarget)
	}
	if target.Query().Get("listIds") != "A,B" || target.Query().Get("offset") != "50" {
		t.Errorf("proxied query = %q", target.RawQuery)
	}
	if gotAuth != "Bearer "+testToken {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
