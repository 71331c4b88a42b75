// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the experimentation
// service.
//
// Metrics live on an injected registry rather than the package-global default
// so tests can assert counter increments without cross-test interference.
// The registry is the only process-wide singleton the service holds.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace for all experimentation metrics.
const metricsNamespace = "experimentation"

// Metrics holds every Prometheus collector the service emits.
//
// All operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	// ExperimentsTotal counts lifecycle transitions by resulting status.
	ExperimentsTotal *prometheus.CounterVec

	// VariantAssignmentsTotal counts durable assignments.
	// Labels: experiment_id, variant.
	VariantAssignmentsTotal *prometheus.CounterVec

	// EventsTotal counts tracked events.
	// Labels: experiment_id, variant, event_name.
	EventsTotal *prometheus.CounterVec

	// EventValues records the distribution of event values.
	EventValues *prometheus.HistogramVec

	// RequestDuration measures handler latency by endpoint and method.
	RequestDuration *prometheus.HistogramVec

	// SignificantResultsTotal counts analyses that found significance.
	SignificantResultsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ExperimentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "experiments_total",
				Help:      "Total number of experiment lifecycle transitions by status",
			},
			[]string{"status"},
		),
		VariantAssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "variant_assignments_total",
				Help:      "Total variant assignments",
			},
			[]string{"experiment_id", "variant"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "Total events tracked",
			},
			[]string{"experiment_id", "variant", "event_name"},
		),
		EventValues: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "event_values",
				Help:      "Distribution of event values",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"experiment_id", "variant", "event_name"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint", "method"},
		),
		SignificantResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "significant_results_total",
				Help:      "Number of statistically significant results found",
			},
			[]string{"experiment_id"},
		),
	}

	reg.MustRegister(
		m.ExperimentsTotal,
		m.VariantAssignmentsTotal,
		m.EventsTotal,
		m.EventValues,
		m.RequestDuration,
		m.SignificantResultsTotal,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
