// Package datadog implements a DogStatsD backend for the metrics package.
package datadog

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/JonMunkholm/csvmapper/internal/metrics"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125".
	Addr string

	// Namespace prefixes every metric name. A trailing dot is added when
	// missing.
	Namespace string

	// GlobalTags are applied to every metric, e.g. "env:prod".
	GlobalTags []string
}

// Backend forwards counters and histograms to a Datadog agent.
type Backend struct {
	client statsd.ClientInterface
}

// NewBackend creates a statsd client for cfg.Addr.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}

	var opts []statsd.Option
	if ns := cfg.Namespace; ns != "" {
		if ns[len(ns)-1] != '.' {
			ns += "."
		}
		opts = append(opts, statsd.WithNamespace(ns))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	// Count takes an int64; fractional deltas are truncated.
	_ = b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush closes the client, sending anything buffered. Call it once at
// shutdown.
func (b *Backend) Flush() error {
	return b.client.Close()
}

func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	return out
}
