// Package metrics exposes the Prometheus registry shared by the SaleSys
// packages. Metrics are defined next to the code that records them (client,
// pagination, export, ratelimit) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all package metrics are attached to.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - salesys_requests_total{endpoint, status} (Counter): Requests by endpoint (lists, strings) and HTTP status
//   - salesys_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - salesys_errors_total{class} (Counter): Errors by class (auth, client, rate_limit, server, network, decode)
//
// Paging Metrics (pkg/pagination):
//   - salesys_pages_fetched_total{mode} (Counter): Pages fetched by the loader (interactive) or drainer (drain)
//   - salesys_drains_total{result} (Counter): Finished drains by result (completed, aborted)
//   - salesys_drain_records (Histogram): Records collected per successful drain
//
// Export Metrics (pkg/export):
//   - salesys_exports_total{outcome} (Counter): Exports by outcome (exported, no_data, drain_failed, serialize_failed)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - salesys_rate_limit_remaining (Gauge): Upstream budget left in the current window
//   - salesys_rate_limit_blocks_total (Counter): Proxied requests rejected while the budget was exhausted
//   - salesys_rate_limit_throttles_total (Counter): Proxied requests delayed while the budget was low
//
// Proxy Metrics (pkg/proxy):
//   - salesys_proxy_requests_total{result} (Counter): Forwarded requests by result
//
// Example Prometheus Queries:
//
//   # Drain failure ratio
//   sum(rate(salesys_drains_total{result="failed"}[1h])) / sum(rate(salesys_drains_total[1h]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(salesys_request_duration_seconds_bucket{endpoint="strings"}[5m]))
//
//   # Token problems
//   increase(salesys_errors_total{class="auth"}[15m]) > 0
