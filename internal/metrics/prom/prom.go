// Package prom implements a Prometheus scrape backend for the metrics
// package. Collectors live on a private registry served by Handler.
package prom

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/csvmapper/internal/metrics"
)

// Backend is a Prometheus metrics backend.
type Backend struct {
	reg *prometheus.Registry

	parseTotal    *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	rowsTotal     *prometheus.CounterVec
	sessionsTotal *prometheus.CounterVec
	validateDur   prometheus.Histogram
}

// NewBackend registers the collectors under namespace. Go runtime and
// process collectors are registered too.
func NewBackend(namespace string) (*Backend, error) {
	reg := prometheus.NewRegistry()

	b := &Backend{
		reg: reg,
		parseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metrics.ParseTotal,
			Help:      "Parse sessions by final status.",
		}, []string{"status"}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metrics.ParseDuration,
			Help:      "Parse session duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"status"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metrics.RowsTotal,
			Help:      "Rows by kind (parsed, valid, invalid, edited, removed, submitted).",
		}, []string{"kind"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metrics.SessionsTotal,
			Help:      "Import session lifecycle events.",
		}, []string{"event"}),
		validateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metrics.ValidateSeconds,
			Help:      "Time spent validating a full result set.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		b.parseTotal,
		b.parseDuration,
		b.rowsTotal,
		b.sessionsTotal,
		b.validateDur,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.ParseTotal:
		b.parseTotal.WithLabelValues(labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rowsTotal.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.SessionsTotal:
		b.sessionsTotal.WithLabelValues(labels["event"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.ParseDuration:
		b.parseDuration.WithLabelValues(labels["status"]).Observe(value)
	case metrics.ValidateSeconds:
		b.validateDur.Observe(value)
	}
}

// Flush is a no-op; Prometheus pulls.
func (b *Backend) Flush() error { return nil }

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{Registry: b.reg})
}
