// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
)

// assignmentKey is the unique key for assignments.
type assignmentKey struct {
	experimentID string
	userID       string
}

// MemoryStore is an in-process Store. The single mutex doubles as the
// unique-key constraint: PutAssignment is atomic, so concurrent first-time
// requests for the same user resolve to exactly one stored variant.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]datatypes.Experiment
	order       []string // creation order for stable listing
	assignments map[assignmentKey]datatypes.Assignment
	events      map[string][]datatypes.Event // keyed by experiment id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]datatypes.Experiment),
		assignments: make(map[assignmentKey]datatypes.Assignment),
		events:      make(map[string][]datatypes.Event),
	}
}

func (s *MemoryStore) CreateExperiment(_ context.Context, exp *datatypes.Experiment) error {
	if err := datatypes.ValidateVariants(exp.Variants); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.experiments[exp.ID]; exists {
		return fmt.Errorf("%w: experiment %s", ErrConflict, exp.ID)
	}
	s.experiments[exp.ID] = cloneExperiment(exp)
	s.order = append(s.order, exp.ID)
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (*datatypes.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	out := cloneExperiment(&exp)
	return &out, nil
}

func (s *MemoryStore) ListExperiments(_ context.Context, filter ListFilter) ([]datatypes.Experiment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]datatypes.Experiment, 0, len(s.order))
	for _, id := range s.order {
		exp := s.experiments[id]
		if filter.Status != "" && exp.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneExperiment(&exp))
	}

	total := len(matched)
	lo := filter.Skip
	if lo > total {
		lo = total
	}
	hi := total
	if filter.Limit > 0 && lo+filter.Limit < total {
		hi = lo + filter.Limit
	}
	return matched[lo:hi], total, nil
}

func (s *MemoryStore) UpdateExperiment(_ context.Context, exp *datatypes.Experiment) error {
	if err := datatypes.ValidateVariants(exp.Variants); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[exp.ID]; !ok {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, exp.ID)
	}
	s.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (s *MemoryStore) DeleteExperiment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[id]; !ok {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	delete(s.experiments, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	// Cascade: assignments and events go with the experiment.
	for key := range s.assignments {
		if key.experimentID == id {
			delete(s.assignments, key)
		}
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, experimentID, userID string) (*datatypes.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey{experimentID, userID}]
	if !ok {
		return nil, fmt.Errorf("%w: assignment %s/%s", ErrNotFound, experimentID, userID)
	}
	out := a
	return &out, nil
}

func (s *MemoryStore) PutAssignment(_ context.Context, a *datatypes.Assignment) (*datatypes.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{a.ExperimentID, a.UserID}
	if existing, ok := s.assignments[key]; ok {
		out := existing
		return &out, nil
	}
	s.assignments[key] = *a
	out := *a
	return &out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *datatypes.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[assignmentKey{e.ExperimentID, e.UserID}]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrOrphanEvent, e.ExperimentID, e.UserID)
	}
	s.events[e.ExperimentID] = append(s.events[e.ExperimentID], *e)
	return nil
}

func (s *MemoryStore) SummarizePerVariant(_ context.Context, experimentID string, metrics []string) (map[string]datatypes.VariantSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.experiments[experimentID]; !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, experimentID)
	}

	metricSet := make(map[string]struct{}, len(metrics))
	for _, m := range metrics {
		metricSet[m] = struct{}{}
	}

	summaries := make(map[string]datatypes.VariantSummary)
	for key, a := range s.assignments {
		if key.experimentID != experimentID {
			continue
		}
		sum := summaries[a.Variant]
		sum.SampleSize++
		summaries[a.Variant] = sum
	}

	converted := make(map[string]map[string]struct{}) // variant -> distinct user ids
	for _, e := range s.events[experimentID] {
		if _, tracked := metricSet[e.EventName]; !tracked {
			continue
		}
		sum := summaries[e.Variant]
		sum.Values = append(sum.Values, e.Value)
		summaries[e.Variant] = sum

		users := converted[e.Variant]
		if users == nil {
			users = make(map[string]struct{})
			converted[e.Variant] = users
		}
		users[e.UserID] = struct{}{}
	}
	for variant, users := range converted {
		sum := summaries[variant]
		sum.Conversions = len(users)
		summaries[variant] = sum
	}
	return summaries, nil
}

// cloneExperiment deep-copies the slices so callers cannot mutate stored
// state through a returned record.
func cloneExperiment(exp *datatypes.Experiment) datatypes.Experiment {
	out := *exp
	out.Variants = make([]datatypes.Variant, len(exp.Variants))
	copy(out.Variants, exp.Variants)
	out.Metrics = make([]string, len(exp.Metrics))
	copy(out.Metrics, exp.Metrics)
	return out
}
