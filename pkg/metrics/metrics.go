// Package metrics exposes the Prometheus registry used by ghost-tools.
// Metrics are defined with promauto in the packages that update them
// (client, cache, ratelimit, pagination, tasks); this package documents
// them and exports a snapshot for one-shot CLI runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer WriteTextfile reads from.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every gathered metric to path in the text exposition
// format understood by the node_exporter textfile collector. The file is
// written atomically.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ghost_requests_total{resource, status} (Counter): Admin API requests by resource and HTTP status
//   - ghost_request_duration_seconds{resource} (Histogram): request duration by resource
//   - ghost_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//   - ghost_retries_total{error_class} (Counter): retry attempts
//   - ghost_retry_exhausted_total{error_class} (Counter): requests that used every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ghost_rate_limit_hits_total (Counter): 429 responses seen
//   - ghost_rate_limit_waits_total (Counter): requests delayed by a recorded block
//
// Cache Metrics (pkg/cache):
//   - ghost_cache_hits_total (Counter): browse pages served from redis
//   - ghost_cache_misses_total (Counter): browse pages not in redis
//   - ghost_cache_invalidations_total (Counter): keys dropped after writes
//   - ghost_cache_errors_total{operation} (Counter): redis failures
//
// Engine Metrics (pkg/pagination, pkg/tasks):
//   - ghost_discover_pages_total{resource} (Counter): collection pages fetched
//   - ghost_tasks_total{state} (Counter): tasks settled by completed/skipped/failed
