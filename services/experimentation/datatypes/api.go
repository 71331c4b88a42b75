// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// ExperimentCreate is the request body for POST /api/v1/experiments.
//
// Validation uses go-playground tags where gin can express the rule and
// ValidateVariants for the allocation-sum invariant, which binding tags
// cannot check.
type ExperimentCreate struct {
	Name              string    `json:"name" binding:"required"`
	Description       string    `json:"description" binding:"required"`
	Hypothesis        string    `json:"hypothesis" binding:"required"`
	Variants          []Variant `json:"variants" binding:"required,min=2,dive"`
	Metrics           []string  `json:"metrics" binding:"required,min=1"`
	TargetSampleSize  int       `json:"target_sample_size" binding:"omitempty,gte=10"`
	SignificanceLevel float64   `json:"significance_level" binding:"omitempty,gte=0.01,lte=0.10"`
	TrafficAllocation *float64  `json:"traffic_allocation" binding:"omitempty,gte=0,lte=1"`
}

// ExperimentUpdate is the request body for PUT /api/v1/experiments/{id}.
// All fields are optional; which of them apply depends on the experiment's
// lifecycle state.
type ExperimentUpdate struct {
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty" binding:"omitempty"`
	Hypothesis        *string   `json:"hypothesis,omitempty"`
	Variants          []Variant `json:"variants,omitempty" binding:"omitempty,min=2,dive"`
	Metrics           []string  `json:"metrics,omitempty" binding:"omitempty,min=1"`
	TargetSampleSize  *int      `json:"target_sample_size,omitempty" binding:"omitempty,gte=10"`
	SignificanceLevel *float64  `json:"significance_level,omitempty" binding:"omitempty,gte=0.01,lte=0.10"`
	TrafficAllocation *float64  `json:"traffic_allocation,omitempty" binding:"omitempty,gte=0,lte=1"`
}

// ExperimentList is the response for GET /api/v1/experiments.
type ExperimentList struct {
	Experiments []Experiment `json:"experiments"`
	Total       int          `json:"total"`
	Skip        int          `json:"skip"`
	Limit       int          `json:"limit"`
}

// AssignRequest is the body for POST /api/v1/experiments/{id}/assign.
type AssignRequest struct {
	UserID  string         `json:"user_id" binding:"required"`
	Context map[string]any `json:"context,omitempty"`
}

// AssignResponse wraps the assignment outcome. Assignment is null when the
// experiment is not running or the user falls outside the traffic slice;
// that is a normal outcome, not an error.
type AssignResponse struct {
	Assignment *Assignment `json:"assignment"`
}

// TrackRequest is the body for POST /api/v1/experiments/{id}/track.
type TrackRequest struct {
	UserID    string   `json:"user_id" binding:"required"`
	EventName string   `json:"event_name" binding:"required"`
	Value     *float64 `json:"value,omitempty"`
}

// VariantStats summarizes one variant's observed performance.
type VariantStats struct {
	Variant            string     `json:"variant"`
	SampleSize         int        `json:"sample_size"`
	Conversions        int        `json:"conversions"`
	ConversionRate     float64    `json:"conversion_rate"`
	MeanValue          float64    `json:"mean_value"`
	StdDev             float64    `json:"std_dev"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}

// ExperimentStats is the full analysis for GET /api/v1/experiments/{id}/stats.
type ExperimentStats struct {
	ExperimentID            string         `json:"experiment_id"`
	ExperimentName          string         `json:"experiment_name"`
	Status                  string         `json:"status"`
	Variants                []VariantStats `json:"variants"`
	ControlVariant          string         `json:"control_variant"`
	Winner                  *string        `json:"winner"`
	StatisticalSignificance bool           `json:"statistical_significance"`
	PValue                  float64        `json:"p_value"`
	ConfidenceLevel         float64        `json:"confidence_level"`
	EffectSize              float64        `json:"effect_size"`
	Recommendation          string         `json:"recommendation"`
	SampleSizePerVariant    int            `json:"sample_size_per_variant"`
	TotalConversions        int            `json:"total_conversions"`
}

// VariantSummary is the store-level rollup the statistical kernel consumes:
// assignment count, distinct converting users, and raw metric values.
type VariantSummary struct {
	SampleSize  int
	Conversions int
	Values      []float64
}

// NowUTC returns the current time in UTC truncated to microseconds, which is
// the precision both the Postgres store and Weaviate round-trip cleanly.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
