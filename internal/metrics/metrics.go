// Package metrics exposes Prometheus collectors for the display backend.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	captureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warka_capture_total",
			Help: "Total number of capture attempts, labeled by outcome (ok or the failing stage).",
		},
		[]string{"outcome"},
	)

	captureDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warka_capture_duration_seconds",
			Help:    "Histogram of capture durations, launch through commit.",
			Buckets: []float64{1, 2, 5, 7.5, 10, 15, 30, 60},
		},
	)

	captureInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warka_capture_in_flight",
			Help: "1 while a browser capture is running.",
		},
	)

	captureCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warka_capture_coalesced_total",
			Help: "Capture triggers that joined an in-flight capture instead of starting one.",
		},
	)

	windowReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warka_window_reads_total",
			Help: "Total number of windowed reads, labeled by encoding.",
		},
		[]string{"encoding"},
	)

	windowBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warka_window_bytes_total",
			Help: "Total number of frame samples served through windowed reads.",
		},
	)

	refreshTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warka_refresh_triggers_total",
			Help: "Refresh decisions taken on reads, labeled by policy and action.",
		},
		[]string{"policy", "action"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warka_upstream_requests_total",
			Help: "Total number of upstream API requests, labeled by host and status.",
		},
		[]string{"host", "status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCapture records the outcome and duration of one capture attempt.
func ObserveCapture(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	captureTotal.WithLabelValues(outcome).Inc()
	captureDurationSeconds.Observe(duration.Seconds())
}

// SetCaptureInFlight flips the in-flight gauge.
func SetCaptureInFlight(running bool) {
	if running {
		captureInFlight.Set(1)
		return
	}
	captureInFlight.Set(0)
}

// ObserveCaptureCoalesced counts a trigger that shared another caller's capture.
func ObserveCaptureCoalesced() {
	captureCoalescedTotal.Inc()
}

// ObserveWindowRead records a served window.
func ObserveWindowRead(encoding string, samples int) {
	windowReadsTotal.WithLabelValues(encoding).Inc()
	if samples > 0 {
		windowBytesTotal.Add(float64(samples))
	}
}

// ObserveRefresh records a refresh decision.
func ObserveRefresh(policy, action string) {
	refreshTriggersTotal.WithLabelValues(policy, action).Inc()
}

// ObserveUpstream records an upstream API call.
func ObserveUpstream(rawURL string, status int) {
	upstreamRequestsTotal.WithLabelValues(SanitizeSite(rawURL), strconv.Itoa(status)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
