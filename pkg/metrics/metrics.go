// Package metrics provides the Prometheus registry reference for the Graph
// client. Metrics are defined in their owning packages (client, session)
// via promauto to avoid circular dependencies; this package documents them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer used by the Graph client. All
// metrics register automatically via promauto in their owning packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - graph_requests_total{endpoint, status} (Counter): Requests by resource path and HTTP status
//   - graph_request_duration_seconds{endpoint} (Histogram): Request duration by resource path
//   - graph_errors_total{class} (Counter): Errors by class (unauthorized, rate_limit, server, client, network)
//
// Retry Metrics (pkg/client):
//   - graph_retries_total{error_class} (Counter): Retry attempts by error class
//   - graph_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - graph_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Session Metrics (pkg/session):
//   - graph_token_refreshes_total{outcome} (Counter): Token requests by outcome (success, failure)
//   - graph_pages_fetched_total{endpoint} (Counter): Pages fetched by resource path
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(graph_errors_total[5m])
//
//   # Throttling Pressure
//   rate(graph_errors_total{class="rate_limit"}[5m])
//
//   # Token Refresh Failures
//   rate(graph_token_refreshes_total{outcome="failure"}[15m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(graph_request_duration_seconds_bucket[5m]))
