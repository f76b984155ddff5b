// Package metrics exposes Prometheus counters for polling, persistence and
// the HTTP API. A nil *Metrics is valid and records nothing.
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
	registry          *prometheus.Registry
	polls             *prometheus.CounterVec
	watts             *prometheus.GaugeVec
	energy            *prometheus.CounterVec
	persistAttempts   *prometheus.CounterVec
	persistAbandoned  prometheus.Counter
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the metrics on their own registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugmeter_polls_total",
			Help: "Total plug polls by device and result.",
		}, []string{"device", "result"}),
		watts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plugmeter_power_watts",
			Help: "Last observed power draw by device.",
		}, []string{"device"}),
		energy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugmeter_energy_kwh_total",
			Help: "Energy accumulated by device since start.",
		}, []string{"device"}),
		persistAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugmeter_persist_total",
			Help: "Reading persistence outcomes.",
		}, []string{"result"}),
		persistAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugmeter_persist_abandoned_total",
			Help: "Readings dropped after all retries failed.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.polls,
		m.watts,
		m.energy,
		m.persistAttempts,
		m.persistAbandoned,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Poll records the outcome of one plug read.
func (m *Metrics) Poll(deviceID string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(deviceID, result).Inc()
}

// Sample records an accepted power sample.
func (m *Metrics) Sample(deviceID string, watts, kwh float64) {
	if m == nil {
		return
	}
	m.watts.WithLabelValues(deviceID).Set(watts)
	if kwh > 0 {
		m.energy.WithLabelValues(deviceID).Add(kwh)
	}
}

// Persist records a write to the reading store; abandoned writes are also
// counted separately.
func (m *Metrics) Persist(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.persistAttempts.WithLabelValues("ok").Inc()
		return
	}
	m.persistAttempts.WithLabelValues("error").Inc()
	m.persistAbandoned.Inc()
}
