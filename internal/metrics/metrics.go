// Package metrics exposes Prometheus collectors for the archiver service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal        *prometheus.CounterVec
	crawlResourcesTotal    *prometheus.CounterVec
	crawlBytesStoredTotal  *prometheus.CounterVec
	robotsDeniedTotal      *prometheus.CounterVec
	jobsTotal              *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	hostLimitDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_crawl_pages_total",
				Help: "Total pages fetched during crawls, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlResourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_crawl_resources_total",
				Help: "Total cross-host resources fetched, labeled by resource type.",
			},
			[]string{"type"},
		)

		crawlBytesStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_bytes_stored_total",
				Help: "Total bytes written to blob storage, labeled by site.",
			},
			[]string{"site"},
		)

		robotsDeniedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_robots_denied_total",
				Help: "Total URLs skipped because robots.txt disallowed them.",
			},
			[]string{"site"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_jobs_total",
				Help: "Total jobs processed, labeled by final status.",
			},
			[]string{"status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_fetch_duration_seconds",
				Help:    "Histogram of page/resource fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		hostLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_host_limit_delay_seconds",
				Help:    "Histogram of politeness delays introduced per host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_http_requests_total",
				Help: "Total API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_http_request_duration_seconds",
				Help:    "Histogram of API request latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records a page fetch attempt.
func ObservePage(site, outcome string, bytesStored int) {
	if crawlPagesTotal == nil {
		return
	}
	s := SanitizeSite(site)
	crawlPagesTotal.WithLabelValues(s, outcome).Inc()
	if bytesStored > 0 {
		crawlBytesStoredTotal.WithLabelValues(s).Add(float64(bytesStored))
	}
}

// ObserveResource records a cross-host resource fetch.
func ObserveResource(resourceType string) {
	if crawlResourcesTotal == nil {
		return
	}
	crawlResourcesTotal.WithLabelValues(resourceType).Inc()
}

// ObserveRobotsDenied records a URL skipped by robots.txt.
func ObserveRobotsDenied(site string) {
	if robotsDeniedTotal == nil {
		return
	}
	robotsDeniedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveJob records a processed job's final status.
func ObserveJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records a fetch latency sample.
func ObserveFetch(kind string, duration time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveHostLimitDelay records a politeness wait.
func ObserveHostLimitDelay(host string, duration time.Duration) {
	if hostLimitDelaySeconds == nil {
		return
	}
	hostLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code string, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
