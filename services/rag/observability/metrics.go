// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the RAG service.
// Collectors live on an injected registry so tests can assert observations
// without cross-test interference.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the RAG service emits.
type Metrics struct {
	// RequestsTotal counts HTTP requests by method, endpoint, and status.
	RequestsTotal *prometheus.CounterVec

	// QueryDuration measures semantic search latency in seconds.
	QueryDuration prometheus.Histogram

	// RelevanceScore records the certainty of every returned result.
	RelevanceScore prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_requests_total",
				Help: "Total RAG requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_query_duration_seconds",
				Help:    "RAG query latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),
		RelevanceScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_relevance_score",
				Help:    "RAG relevance scores",
				Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.QueryDuration, m.RelevanceScore)
	return m
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
