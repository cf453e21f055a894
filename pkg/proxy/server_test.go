package proxy

import (
	"context"
	"encoding/json"
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
	"github.com/Sternrassler/salesys-blacklist/pkg/client"
	"github.com/Sternrassler/salesys-blacklist/pkg/ratelimit"
	"github.com/rs/zerolog"
)

const testToken = "proxy-token"

type fixture struct {
	mock   *testutil.MockSaleSys
	server *Server
	ts     *httptest.Server
}

func newFixture(t *testing.T, tracker *ratelimit.Tracker) *fixture {
	t.Helper()

	mock := testutil.NewMockSaleSys(testToken)
	t.Cleanup(mock.Close)
	mock.SetLists(blacklist.List{ID: "A", Name: "Spam", OrganizationID: "org-1"})
	mock.SetStrings("A", testutil.Entries("A", 3))

	srv := NewServer(Config{AllowedHosts: []string{"127.0.0.1"}, Timeout: 5 * time.Second}, tracker, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{mock: mock, server: srv, ts: ts}
}

func (f *fixture) client(t *testing.T) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig(testToken)
	cfg.BaseURL = f.mock.BaseURL()
	cfg.ProxyURL = f.ts.URL + "/proxy"
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}
	return c
}

func (f *fixture) get(t *testing.T, target, token string) *http.Response {
	t.Helper()
	u := f.ts.URL + "/proxy"
	if target != "" {
		u += "?url=" + url.QueryEscape(target)
	}
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProxy_EndToEndThroughClient(t *testing.T) {
	f := newFixture(t, nil)
	c := f.client(t)
	ctx := context.Background()

	lists, err := c.ListBlacklists(ctx)
	if err != nil {
		t.Fatalf("ListBlacklists() error: %v", err)
	}
	if len(lists) != 1 || lists[0].Name != "Spam" {
		t.Errorf("lists = %+v", lists)
	}

	entries, err := c.FetchStrings(ctx, []string{"A"}, 0, 50)
	if err != nil {
		t.Fatalf("FetchStrings() error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}

	h := f.mock.LastRequestHeader
	if h.Get("Authorization") != "Bearer "+testToken {
		t.Errorf("Authorization = %q, token not reinjected", h.Get("Authorization"))
	}
	if h.Get("User-Agent") != "salesys-proxy/0.1.0" {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
}

func TestProxy_Rejections(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		target     string
		token      string
		wantStatus int
		wantError  string
	}{
		{"missing url", "", testToken, http.StatusBadRequest, "missing url parameter"},
		{"relative url", "/api/contacts", testToken, http.StatusBadRequest, "invalid url parameter"},
		{"bad scheme", "ftp://127.0.0.1/file", testToken, http.StatusBadRequest, "unsupported scheme"},
		{"userinfo", "http://user:pw@127.0.0.1/x", testToken, http.StatusBadRequest, "credentials"},
		{"host not allowed", "https://example.com/api", testToken, http.StatusForbidden, "not allowed"},
		{"missing token", f.mock.BaseURL(), "", http.StatusUnauthorized, "missing bearer token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.mock.GetRequestCount()
			resp := f.get(t, tt.target, tt.token)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if !strings.Contains(body["error"], tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", body["error"], tt.wantError)
			}
			if f.mock.GetRequestCount() != before {
				t.Error("rejected request reached upstream")
			}
		})
	}
}

func TestProxy_CopiesUpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.FailAtOffset(0, http.StatusInternalServerError)

	_, err := f.client(t).FetchStrings(context.Background(), []string{"A"}, 0, 50)

	var reqErr *client.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", reqErr.StatusCode)
	}
	if err.Error() != "API request failed: 500 Internal Server Error" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestProxy_RateLimitGating(t *testing.T) {
	tracker := ratelimit.NewTracker(ratelimit.NewMemoryStore(), zerolog.Nop())
	f := newFixture(t, tracker)
	f.mock.SetHeader(ratelimit.HeaderRemaining, "0")
	f.mock.SetHeader(ratelimit.HeaderReset, "60")

	resp := f.get(t, f.mock.BaseURL(), testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(ratelimit.HeaderRemaining) != "0" {
		t.Error("upstream headers were not copied")
	}

	resp = f.get(t, f.mock.BaseURL(), testToken)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if f.mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", f.mock.GetRequestCount())
	}

	_, err := f.client(t).ListBlacklists(context.Background())
	var reqErr *client.RequestError
	if !errors.As(err, &reqErr) || reqErr.Class != client.ErrorClassRateLimit {
		t.Errorf("client error = %v, want rate_limit class", err)
	}
}

func TestProxy_UpstreamUnreachable(t *testing.T) {
	f := newFixture(t, nil)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	resp := f.get(t, deadURL+"/api", testToken)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	resp, _ = http.Get(f.ts.URL + "/ready")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/ready without check status = %d", resp.StatusCode)
	}

	f.server.SetReadinessCheck(func(context.Context) error { return errors.New("redis down") })
	resp, _ = http.Get(f.ts.URL + "/ready")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/ready with failing check status = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.get(t, "", testToken)

	resp, err := http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "salesys_proxy_requests_total") {
		t.Error("/metrics does not expose proxy counters")
	}
}

func TestCopyHeaders_DropsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Set("Connection", "keep-alive")
	src.Set("Transfer-Encoding", "chunked")
	src.Add("X-Trace", "a")
	src.Add("X-Trace", "b")

	dst := http.Header{}
	copyHeaders(dst, src)

	if dst.Get("Connection") != "" || dst.Get("Transfer-Encoding") != "" {
		t.Error("hop-by-hop headers copied")
	}
	if len(dst.Values("X-Trace")) != 2 {
		t.Errorf("X-Trace = %v", dst.Values("X-Trace"))
	}
}

func TestShutdownBeforeListen(t *testing.T) {
	srv := NewServer(Config{}, nil, zerolog.Nop())
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := srv.ListenAndServe("127.0.0.1:0"); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("ListenAndServe() after Shutdown = %v, want ErrServerClosed", err)
	}
}
