// Package metrics provides the centralized Prometheus registry reference
// for the timeline collector. Metrics are defined in the packages that
// own the behavior (collector, retry, transport, ratelimit) to keep
// modularity and avoid circular dependencies.
//
// This package documents all available metrics in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the collector.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Collection Metrics (pkg/collector):
//   - timeline_pages_fetched_total{target} (Counter): Pages fetched per target
//   - timeline_posts_emitted_total{target} (Counter): Posts emitted per target
//   - timeline_duplicates_total{target} (Counter): Duplicate posts dropped across pages
//   - timeline_entries_skipped_total{target} (Counter): Raw entries dropped during normalization
//   - timeline_runs_total{reason} (Counter): Runs by termination reason
//
// Retry Metrics (pkg/retry):
//   - timeline_retries_total{kind} (Counter): Retry decisions by failure kind
//   - timeline_retry_backoff_seconds{kind} (Histogram): Backoff durations by failure kind
//   - timeline_retry_exhausted_total{kind} (Counter): Attempt ceilings exceeded by failure kind
//
// Transport Metrics (pkg/transport):
//   - timeline_upstream_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and status
//   - timeline_upstream_request_duration_seconds{endpoint} (Histogram): Upstream request duration
//
// Rate Limit Metrics (pkg/ratelimit):
//   - timeline_rate_limit_remaining (Gauge): Requests remaining in the upstream window
//   - timeline_rate_limit_blocks_total (Counter): Fetches blocked due to critical budget
//   - timeline_rate_limit_throttles_total (Counter): Fetches throttled due to low budget
//
// Example Prometheus Queries:
//
//   # Duplicate rate per target
//   rate(timeline_duplicates_total[5m]) / rate(timeline_posts_emitted_total[5m])
//
//   # Runs ending abnormally
//   sum(rate(timeline_runs_total{reason=~"aborted|no-progress"}[15m]))
//
//   # Retry pressure by failure kind
//   rate(timeline_retries_total[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(timeline_upstream_request_duration_seconds_bucket[5m]))
