// Package metrics owns the prometheus collectors for both services. Every
// method is safe on a nil *Metrics so tests can skip instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	tokenVerification *prometheus.CounterVec
	providerRequests  *prometheus.CounterVec
	providerDuration  *prometheus.HistogramVec
	emailJobs         *prometheus.CounterVec
	rateLimited       prometheus.Counter
}

func New(service string) *Metrics {
	constLabels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "HTTP requests by route, method and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
		tokenVerification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "token_verifications_total",
			Help:        "Bearer token checks by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "provider_requests_total",
			Help:        "Completion provider calls by outcome.",
			ConstLabels: constLabels,
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "provider_request_duration_seconds",
			Help:        "Completion provider latency.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),
		emailJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "email_jobs_total",
			Help:        "Email jobs processed by type and outcome.",
			ConstLabels: constLabels,
		}, []string{"type", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rate_limited_requests_total",
			Help:        "Requests rejected by the rate limiter.",
			ConstLabels: constLabels,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.tokenVerification,
		m.providerRequests,
		m.providerDuration,
		m.emailJobs,
		m.rateLimited,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) TokenVerification(outcome string) {
	if m == nil {
		return
	}
	m.tokenVerification.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProviderCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) EmailJob(jobType, outcome string) {
	if m == nil {
		return
	}
	m.emailJobs.WithLabelValues(jobType, outcome).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
