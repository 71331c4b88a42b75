// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the experimentation service's domain records and
// API request/response shapes.
package datatypes

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Experiment lifecycle states. Status only ever moves forward:
// draft -> running -> (stopped | completed).
const (
	StatusDraft     = "draft"
	StatusRunning   = "running"
	StatusStopped   = "stopped"
	StatusCompleted = "completed"
)

// allocationTolerance is the slack allowed when checking that variant
// allocations sum to 1.0.
const allocationTolerance = 1e-3

var (
	// ErrTooFewVariants is returned when an experiment has fewer than two variants.
	ErrTooFewVariants = errors.New("experiment requires at least two variants")

	// ErrNoMetrics is returned when an experiment tracks no metrics.
	ErrNoMetrics = errors.New("experiment requires at least one metric")

	// ErrAllocationSum is returned when variant allocations do not sum to 1.0.
	ErrAllocationSum = errors.New("variant allocations must sum to 1.0")

	// ErrDuplicateVariant is returned when two variants share a name.
	ErrDuplicateVariant = errors.New("variant names must be unique")
)

// Variant is one arm of an experiment.
type Variant struct {
	Name       string         `json:"name" binding:"required"`
	Allocation float64        `json:"allocation" binding:"gte=0,lte=1"`
	Config     map[string]any `json:"config,omitempty"`
}

// Experiment is an A/B test definition. The first variant is the control by
// convention.
type Experiment struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Hypothesis        string     `json:"hypothesis"`
	Status            string     `json:"status"`
	Variants          []Variant  `json:"variants"`
	Metrics           []string   `json:"metrics"`
	TargetSampleSize  int        `json:"target_sample_size"`
	SignificanceLevel float64    `json:"significance_level"`
	TrafficAllocation float64    `json:"traffic_allocation"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	StoppedAt         *time.Time `json:"stopped_at,omitempty"`
}

// Control returns the name of the control variant (the first one).
func (e *Experiment) Control() string {
	return e.Variants[0].Name
}

// HasMetric reports whether eventName is one of the experiment's tracked
// metrics.
func (e *Experiment) HasMetric(eventName string) bool {
	for _, m := range e.Metrics {
		if m == eventName {
			return true
		}
	}
	return false
}

// ValidateVariants checks the structural invariants on a variant list:
// at least two variants, unique names, allocations summing to 1.0 within
// tolerance.
func ValidateVariants(variants []Variant) error {
	if len(variants) < 2 {
		return ErrTooFewVariants
	}

	seen := make(map[string]struct{}, len(variants))
	total := 0.0
	for _, v := range variants {
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateVariant, v.Name)
		}
		seen[v.Name] = struct{}{}
		total += v.Allocation
	}

	if math.Abs(total-1.0) > allocationTolerance {
		return fmt.Errorf("%w (got %.4f)", ErrAllocationSum, total)
	}
	return nil
}

// Assignment ties a user to a variant for a single experiment. Immutable once
// written; the (ExperimentID, UserID) pair is unique.
type Assignment struct {
	ExperimentID string         `json:"experiment_id"`
	UserID       string         `json:"user_id"`
	Variant      string         `json:"variant"`
	Context      map[string]any `json:"context,omitempty"`
	AssignedAt   time.Time      `json:"assigned_at"`
}

// Event is a single tracked occurrence attributed to an assignment.
// Append-only.
type Event struct {
	ExperimentID string    `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	Variant      string    `json:"variant"`
	EventName    string    `json:"event_name"`
	Value        float64   `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}
