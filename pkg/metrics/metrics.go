// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"bytes"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
)

// Collector captures metrics about polls and waits.
type Collector struct {
	registry      *prometheus.Registry
	attemptsTotal *prometheus.CounterVec
	waitsTotal    *prometheus.CounterVec
	waitDuration  *prometheus.HistogramVec
}

var _ poll.Observer = &Collector{}

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	collector := &Collector{
		registry: registry,
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalance_verifier_poll_attempts_total",
				Help: "Total number of condition evaluations",
			},
			[]string{"outcome"},
		),
		waitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalance_verifier_waits_total",
				Help: "Total number of completed waits",
			},
			[]string{"outcome"},
		),
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rebalance_verifier_wait_duration_seconds",
				Help:    "Wait duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(collector.attemptsTotal, collector.waitsTotal, collector.waitDuration)
	return collector
}

// ObserveAttempt records the outcome of a single evaluation.
func (c *Collector) ObserveAttempt(outcome poll.AttemptOutcome) {
	c.attemptsTotal.WithLabelValues(string(outcome)).Inc()
}

// ObserveWait records the outcome of a wait.
func (c *Collector) ObserveWait(outcome poll.WaitOutcome, elapsed time.Duration) {
	c.waitsTotal.WithLabelValues(string(outcome)).Inc()
	c.waitDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
