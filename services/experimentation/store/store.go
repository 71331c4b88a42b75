// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the persistence port for experiments, assignments,
// and events, plus an in-memory implementation used as the default backend
// and as the test double.
//
// Implementations must provide the unique-key constraint on
// (experiment_id, user_id) that serializes first-time assignment: the first
// writer wins, later writers read the winner back.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned on a duplicate unique key.
	ErrConflict = errors.New("store: conflict")

	// ErrValidation is returned when a record violates a structural invariant.
	ErrValidation = errors.New("store: validation failed")

	// ErrOrphanEvent is returned when an event references a missing assignment.
	ErrOrphanEvent = errors.New("store: event has no matching assignment")

	// ErrUnavailable is returned when the backing store is unreachable.
	ErrUnavailable = errors.New("store: unavailable")
)

// ListFilter narrows and pages ListExperiments.
type ListFilter struct {
	Status string
	Skip   int
	Limit  int
}

// Store is the persistence contract for the experimentation service.
//
// All operations are synchronous from the caller's perspective. Methods
// return copies; mutating a returned record never affects stored state.
type Store interface {
	// CreateExperiment persists a new experiment. Returns ErrValidation if
	// variant allocations do not sum to 1.0, ErrConflict on a duplicate id.
	CreateExperiment(ctx context.Context, exp *datatypes.Experiment) error

	// GetExperiment returns the experiment or ErrNotFound.
	GetExperiment(ctx context.Context, id string) (*datatypes.Experiment, error)

	// ListExperiments returns a page of experiments plus the total count
	// matching the filter (before paging).
	ListExperiments(ctx context.Context, filter ListFilter) ([]datatypes.Experiment, int, error)

	// UpdateExperiment replaces the stored record. The manager owns which
	// fields may change per lifecycle state; the store only checks the
	// variant invariants.
	UpdateExperiment(ctx context.Context, exp *datatypes.Experiment) error

	// DeleteExperiment removes the experiment and cascades its assignments
	// and events.
	DeleteExperiment(ctx context.Context, id string) error

	// GetAssignment returns the assignment for (experimentID, userID) or
	// ErrNotFound.
	GetAssignment(ctx context.Context, experimentID, userID string) (*datatypes.Assignment, error)

	// PutAssignment writes an assignment, idempotently by unique key. When a
	// concurrent or earlier writer already holds the key, the stored winner
	// is returned instead of the argument.
	PutAssignment(ctx context.Context, a *datatypes.Assignment) (*datatypes.Assignment, error)

	// AppendEvent appends an event. Returns ErrOrphanEvent when no matching
	// assignment exists.
	AppendEvent(ctx context.Context, e *datatypes.Event) error

	// SummarizePerVariant rolls up assignment counts, distinct converting
	// users, and metric values per variant. Conversions count distinct
	// user_ids that emitted at least one event whose name is in metrics.
	SummarizePerVariant(ctx context.Context, experimentID string, metrics []string) (map[string]datatypes.VariantSummary, error)
}
