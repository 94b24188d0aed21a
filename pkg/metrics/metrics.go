// Package metrics documents the Prometheus metrics of the Pure API client
// and exposes them over HTTP.
//
// Metrics are defined with promauto in the packages that record them
// (client, ratelimit, pagination, changes, checkpoint) and register on the
// default registry when those packages are imported.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all client metrics use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the client metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - pure_requests_total{collection, status} (Counter): Requests by collection and HTTP status
//   - pure_request_duration_seconds{collection} (Histogram): Request duration, retries included
//   - pure_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - pure_breaker_state_changes_total{to} (Counter): Circuit breaker transitions
//
// Retry Metrics (pkg/client):
//   - pure_retries_total{error_class} (Counter): Retry attempts by error class
//   - pure_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pure_retry_exhausted_total{error_class} (Counter): Requests that spent a bounded retry budget
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pure_rate_limit_waits_total{reason} (Counter): Waits before a request (client_limit, retry_after)
//   - pure_retry_after_seconds (Histogram): Retry-After values sent by the server
//
// Pagination Metrics (pkg/pagination, pkg/changes):
//   - pure_pages_total{engine} (Counter): Pages yielded (get, filter, group, batch)
//   - pure_change_pages_total (Counter): Change pages yielded
//   - pure_change_pages_skipped_total (Counter): Empty change pages skipped while moreChanges was true
//
// Checkpoint Metrics (pkg/checkpoint):
//   - pure_checkpoint_operations_total{store, operation, result} (Counter): Load/save/delete by result
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(pure_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(pure_request_duration_seconds_bucket[5m]))
//
//   # Share of empty change pages
//   rate(pure_change_pages_skipped_total[1h]) /
//   (rate(pure_change_pages_total[1h]) + rate(pure_change_pages_skipped_total[1h]))
