// Package metrics provides a Prometheus metrics registry for the relay.
//
// All metrics live in a private registry (not the global default) so they
// don't collide with host-level metrics when embedded elsewhere. The /metrics
// handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// relay_inflight_requests
	inFlight prometheus.Gauge

	// relay_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// relay_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// relay_http_request_size_bytes{route}
	httpReqSize *prometheus.HistogramVec

	// relay_http_response_size_bytes{route,status}
	httpRespSize *prometheus.HistogramVec

	// relay_outcomes_total{status}
	outcomes *prometheus.CounterVec

	// relay_upstream_attempts_total{outcome}
	upstreamAttempts *prometheus.CounterVec

	// relay_upstream_duration_seconds{outcome}
	upstreamDuration *prometheus.HistogramVec

	// relay_upstream_errors_total{kind}
	upstreamErrors *prometheus.CounterVec

	// relay_reply_shapes_total{shape}
	replyShapes *prometheus.CounterVec

	// relay_prompt_split_total{result}
	promptSplit *prometheus.CounterVec

	// relay_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// relay_request_log_dropped_total
	logDropped prometheus.Counter

	// relay_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of HTTP requests handled by the server",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, upstream call included",
				Buckets: latencyBuckets,
			},
			[]string{"route"},
		),

		httpReqSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 14), // 64B .. ~512KB
			},
			[]string{"route"},
		),

		httpRespSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_response_size_bytes",
				Help:    "HTTP response body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 16), // 64B .. ~2MB
			},
			[]string{"route", "status"},
		),

		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_outcomes_total",
				Help: "Relay invocations by final status code, across all entry points",
			},
			[]string{"status"},
		),

		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_upstream_attempts_total",
				Help: "Upstream calls by outcome (ok, status, network, timeout, decode)",
			},
			[]string{"outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_upstream_duration_seconds",
				Help:    "Upstream call duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"outcome"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_upstream_errors_total",
				Help: "Upstream failures by kind",
			},
			[]string{"kind"},
		),

		replyShapes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_reply_shapes_total",
				Help: "Decoded upstream replies by shape",
			},
			[]string{"shape"},
		),

		promptSplit: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_prompt_split_total",
				Help: "Prompt split results (marker found or missing)",
			},
			[]string{"result"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_ratelimit_total",
				Help: "Rate limit decisions",
			},
			[]string{"result"},
		),

		logDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_request_log_dropped_total",
			Help: "Request log entries dropped because the buffer was full",
		}),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.httpReqSize,
		r.httpRespSize,
		r.outcomes,
		r.upstreamAttempts,
		r.upstreamDuration,
		r.upstreamErrors,
		r.replyShapes,
		r.promptSplit,
		r.rateLimitTotal,
		r.logDropped,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration, reqBytes, respBytes int) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
	if reqBytes >= 0 {
		r.httpReqSize.WithLabelValues(route).Observe(float64(reqBytes))
	}
	if respBytes >= 0 {
		r.httpRespSize.WithLabelValues(route, status).Observe(float64(respBytes))
	}
}

// RecordOutcome counts one relay invocation by its final status.
func (r *Registry) RecordOutcome(statusCode int) {
	r.outcomes.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveUpstream records one upstream call.
func (r *Registry) ObserveUpstream(outcome string, dur time.Duration) {
	r.upstreamAttempts.WithLabelValues(outcome).Inc()
	r.upstreamDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

func (r *Registry) RecordUpstreamError(kind string) {
	r.upstreamErrors.WithLabelValues(kind).Inc()
}

func (r *Registry) RecordReplyShape(shape string) {
	r.replyShapes.WithLabelValues(shape).Inc()
}

func (r *Registry) RecordPromptSplit(found bool) {
	if found {
		r.promptSplit.WithLabelValues("marker").Inc()
		return
	}
	r.promptSplit.WithLabelValues("no_marker").Inc()
}

func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RecordLogDropped() { r.logDropped.Inc() }

func (r *Registry) SetBuildInfo(version string) {
	// Gauge so the series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
