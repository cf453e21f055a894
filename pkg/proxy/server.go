// Package proxy implements the pass-through forwarding endpoint used by the
// hosted tool: GET /proxy?url=<encoded upstream URL>. The caller's bearer
// token is reinjected into the upstream request, targets are restricted to an
// allowlist of hosts and the upstream status, headers and body are copied back.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/metrics"
	"github.com/Sternrassler/salesys-blacklist/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "salesys_proxy_requests_total",
	Help: "Total proxied requests by result",
}, []string{"result"})

// Result labels.
const (
	resultForwarded     = "forwarded"
	resultBadRequest    = "bad_request"
	resultForbiddenHost = "forbidden_host"
	resultMissingToken  = "missing_token"
	resultRateLimited   = "rate_limited"
	resultUpstreamError = "upstream_error"
)

// hopHeaders are not copied between hops.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config configures the proxy.
type Config struct {
	// AllowedHosts are the upstream host names requests may target.
	AllowedHosts []string

	// Timeout per upstream request.
	Timeout time.Duration

	// UserAgent sent upstream.
	UserAgent string
}

// Server is the proxy HTTP server.
type Server struct {
	router     *chi.Mux
	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
	client     *http.Client
	tracker    *ratelimit.Tracker
	ready      func(context.Context) error
	allowed    map[string]bool
	config     Config
	logger     zerolog.Logger
	startTime  time.Time
}

// NewServer creates the proxy. tracker may be nil to disable upstream rate
// limit gating.
func NewServer(cfg Config, tracker *ratelimit.Tracker, logger zerolog.Logger) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "salesys-proxy/0.1.0"
	}

	allowed := make(map[string]bool, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		allowed[strings.ToLower(strings.TrimSpace(h))] = true
	}

	s := &Server{
		router:    chi.NewRouter(),
		client:    &http.Client{Timeout: cfg.Timeout},
		tracker:   tracker,
		allowed:   allowed,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// SetHTTPClient replaces the upstream HTTP client (for testing).
func (s *Server) SetHTTPClient(c *http.Client) {
	s.client = c
}

// SetReadinessCheck installs the probe used by /ready.
func (s *Server) SetReadinessCheck(fn func(context.Context) error) {
	s.ready = fn
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router.Get("/proxy", s.handleProxy)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.Timeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", addr).
		Strs("allowed_hosts", s.config.AllowedHosts).
		Bool("rate_limit_gating", s.tracker != nil).
		Msg("Starting proxy server")
	return httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server. A later ListenAndServe returns
// http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down proxy server")
	s.mu.Lock()
	s.closed = true
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer != nil {
		return httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Int("bytes", ww.BytesWritten()).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target, status, err := s.parseTarget(r.URL.Query().Get("url"))
	if err != nil {
		result := resultBadRequest
		if status == http.StatusForbidden {
			result = resultForbiddenHost
		}
		requestsTotal.WithLabelValues(result).Inc()
		writeError(w, status, err.Error())
		return
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) == "" {
		requestsTotal.WithLabelValues(resultMissingToken).Inc()
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	if s.tracker != nil {
		decision, err := s.tracker.Allow(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			// Gating is best effort; a broken store must not take the proxy down.
			s.logger.Warn().Err(err).Msg("Rate limit state unavailable, forwarding anyway")
		case !decision.Allowed:
			requestsTotal.WithLabelValues(resultRateLimited).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "upstream rate limit exhausted")
			return
		}
	}

	upReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		requestsTotal.WithLabelValues(resultBadRequest).Inc()
		writeError(w, http.StatusBadRequest, "invalid url parameter")
		return
	}
	upReq.Header.Set("Authorization", auth)
	upReq.Header.Set("Content-Type", "application/json")
	if accept := r.Header.Get("Accept"); accept != "" {
		upReq.Header.Set("Accept", accept)
	}
	upReq.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(upReq)
	if err != nil {
		requestsTotal.WithLabelValues(resultUpstreamError).Inc()
		code := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		s.logger.Error().Err(err).Str("host", target.Host).Msg("Upstream request failed")
		writeError(w, code, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	if s.tracker != nil {
		if err := s.tracker.Observe(ctx, resp.StatusCode, resp.Header); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record upstream rate limit")
		}
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to copy upstream body")
	}

	requestsTotal.WithLabelValues(resultForwarded).Inc()
	s.logger.Debug().
		Str("host", target.Host).
		Str("path", target.Path).
		Int("status", resp.StatusCode).
		Msg("Request forwarded")
}

// parseTarget validates the url parameter and returns the HTTP status to
// answer with when it is rejected.
func (s *Server) parseTarget(raw string) (*url.URL, int, error) {
	if raw == "" {
		return nil, http.StatusBadRequest, errors.New("missing url parameter")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, http.StatusBadRequest, errors.New("invalid url parameter")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, http.StatusBadRequest, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.User != nil {
		return nil, http.StatusBadRequest, errors.New("credentials in url are not allowed")
	}
	if !s.allowed[strings.ToLower(u.Hostname())] {
		return nil, http.StatusForbidden, fmt.Errorf("host %q is not allowed", u.Hostname())
	}
	return u, 0, nil
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
