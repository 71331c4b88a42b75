// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager owns the experiment lifecycle and is the only writer of
// experiments, assignments, and events.
//
// Lifecycle state machine:
//
//	draft ──start──► running ──stop──► stopped
//	                   │
//	                   └──(internal completion)──► completed
//
// Allowed mutations by state:
//   - draft: everything except id, created_at, status, started_at, stopped_at
//   - running: description, traffic_allocation, target_sample_size only
//   - stopped / completed: immutable except delete
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/fawkes/services/experimentation/assignment"
	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
	"github.com/AleutianAI/fawkes/services/experimentation/observability"
	"github.com/AleutianAI/fawkes/services/experimentation/stats"
	"github.com/AleutianAI/fawkes/services/experimentation/store"
)

// defaultTargetSampleSize applies when a create request omits the target.
const defaultTargetSampleSize = 1000

// defaultSignificanceLevel applies when a create request omits alpha.
const defaultSignificanceLevel = 0.05

// Manager coordinates experiment lifecycle, assignment, event ingestion, and
// analysis over a Store.
type Manager struct {
	store   store.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Manager. All dependencies are required.
func New(st store.Store, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	return &Manager{store: st, metrics: metrics, logger: logger}
}

// Create validates and persists a new draft experiment.
func (m *Manager) Create(ctx context.Context, req *datatypes.ExperimentCreate) (*datatypes.Experiment, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	exp := &datatypes.Experiment{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Description:       req.Description,
		Hypothesis:        req.Hypothesis,
		Status:            datatypes.StatusDraft,
		Variants:          req.Variants,
		Metrics:           req.Metrics,
		TargetSampleSize:  req.TargetSampleSize,
		SignificanceLevel: req.SignificanceLevel,
		TrafficAllocation: 1.0,
		CreatedAt:         datatypes.NowUTC(),
	}
	if exp.TargetSampleSize == 0 {
		exp.TargetSampleSize = defaultTargetSampleSize
	}
	if exp.SignificanceLevel == 0 {
		exp.SignificanceLevel = defaultSignificanceLevel
	}
	if req.TrafficAllocation != nil {
		exp.TrafficAllocation = *req.TrafficAllocation
	}

	if err := m.store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	m.metrics.ExperimentsTotal.WithLabelValues(datatypes.StatusDraft).Inc()
	m.logger.Info("created experiment", "experiment_id", exp.ID, "name", exp.Name,
		"variants", len(exp.Variants))
	return exp, nil
}

// Get returns one experiment.
func (m *Manager) Get(ctx context.Context, id string) (*datatypes.Experiment, error) {
	return m.store.GetExperiment(ctx, id)
}

// List pages experiments, optionally filtered by status.
func (m *Manager) List(ctx context.Context, filter store.ListFilter) (*datatypes.ExperimentList, error) {
	exps, total, err := m.store.ListExperiments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if exps == nil {
		exps = []datatypes.Experiment{}
	}
	return &datatypes.ExperimentList{
		Experiments: exps,
		Total:       total,
		Skip:        filter.Skip,
		Limit:       filter.Limit,
	}, nil
}

// Update applies a partial update subject to the lifecycle mutation rules.
//
// Fields outside the allowed set for the current state are silently ignored
// rather than rejected; clients routinely send whole documents back.
func (m *Manager) Update(ctx context.Context, id string, patch *datatypes.ExperimentUpdate) (*datatypes.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	switch exp.Status {
	case datatypes.StatusDraft:
		if patch.Name != nil {
			exp.Name = *patch.Name
		}
		if patch.Description != nil {
			exp.Description = *patch.Description
		}
		if patch.Hypothesis != nil {
			exp.Hypothesis = *patch.Hypothesis
		}
		if patch.Variants != nil {
			if err := datatypes.ValidateVariants(patch.Variants); err != nil {
				return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
			}
			exp.Variants = patch.Variants
		}
		if patch.Metrics != nil {
			exp.Metrics = patch.Metrics
		}
		if patch.SignificanceLevel != nil {
			exp.SignificanceLevel = *patch.SignificanceLevel
		}
		if patch.TargetSampleSize != nil {
			exp.TargetSampleSize = *patch.TargetSampleSize
		}
		if patch.TrafficAllocation != nil {
			exp.TrafficAllocation = *patch.TrafficAllocation
		}
	case datatypes.StatusRunning:
		if patch.Description != nil {
			exp.Description = *patch.Description
		}
		if patch.TargetSampleSize != nil {
			exp.TargetSampleSize = *patch.TargetSampleSize
		}
		if patch.TrafficAllocation != nil {
			exp.TrafficAllocation = *patch.TrafficAllocation
		}
	default:
		// Stopped and completed experiments are immutable.
		return exp, nil
	}

	if err := m.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Delete removes an experiment and cascades its assignments and events.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteExperiment(ctx, id)
}

// Start moves a draft experiment to running. Any other state is a no-op and
// returns the experiment unchanged.
func (m *Manager) Start(ctx context.Context, id string) (*datatypes.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != datatypes.StatusDraft {
		return exp, nil
	}

	now := datatypes.NowUTC()
	exp.Status = datatypes.StatusRunning
	exp.StartedAt = &now
	if err := m.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	m.metrics.ExperimentsTotal.WithLabelValues(datatypes.StatusRunning).Inc()
	m.logger.Info("started experiment", "experiment_id", id)
	return exp, nil
}

// Stop moves a running experiment to stopped. Any other state is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) (*datatypes.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != datatypes.StatusRunning {
		return exp, nil
	}

	now := datatypes.NowUTC()
	exp.Status = datatypes.StatusStopped
	exp.StoppedAt = &now
	if err := m.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	m.metrics.ExperimentsTotal.WithLabelValues(datatypes.StatusStopped).Inc()
	m.logger.Info("stopped experiment", "experiment_id", id)
	return exp, nil
}

// AssignVariant resolves the variant for a user.
//
// Description:
//
//	Returns (nil, nil), meaning no assignment, when the experiment is not
//	running or the user hashes outside the traffic slice; that outcome is
//	normal, not an error. An existing assignment is always returned as-is,
//	so repeated calls are stable. First-time assignment relies on the
//	store's unique key: the first writer wins and everyone reads the
//	winner back.
//
// Inputs:
//
//	ctx - Request context.
//	experimentID - Experiment to assign for.
//	userID - The user being assigned.
//	userContext - Optional opaque context stored with the assignment.
//
// Outputs:
//
//	*datatypes.Assignment - The durable assignment, or nil for "no assignment".
//	error - store.ErrNotFound when the experiment does not exist.
func (m *Manager) AssignVariant(ctx context.Context, experimentID, userID string, userContext map[string]any) (*datatypes.Assignment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != datatypes.StatusRunning {
		return nil, nil
	}

	if existing, err := m.store.GetAssignment(ctx, experimentID, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if !assignment.InTrafficSlice(experimentID, userID, exp.TrafficAllocation) {
		return nil, nil
	}

	variant := assignment.SelectVariant(experimentID, userID, exp.Variants)
	stored, err := m.store.PutAssignment(ctx, &datatypes.Assignment{
		ExperimentID: experimentID,
		UserID:       userID,
		Variant:      variant,
		Context:      userContext,
		AssignedAt:   datatypes.NowUTC(),
	})
	if err != nil {
		return nil, err
	}

	m.metrics.VariantAssignmentsTotal.WithLabelValues(experimentID, stored.Variant).Inc()
	return stored, nil
}

// TrackEvent appends an event for a user's assignment.
//
// Returns false when the user has no assignment; the event is dropped
// silently because clients may race assignment and first event.
func (m *Manager) TrackEvent(ctx context.Context, experimentID, userID, eventName string, value float64) (bool, error) {
	a, err := m.store.GetAssignment(ctx, experimentID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	err = m.store.AppendEvent(ctx, &datatypes.Event{
		ExperimentID: experimentID,
		UserID:       userID,
		Variant:      a.Variant,
		EventName:    eventName,
		Value:        value,
		Timestamp:    datatypes.NowUTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrOrphanEvent) {
			return false, nil
		}
		return false, err
	}

	m.metrics.EventsTotal.WithLabelValues(experimentID, a.Variant, eventName).Inc()
	m.metrics.EventValues.WithLabelValues(experimentID, a.Variant, eventName).Observe(value)
	return true, nil
}

// Analyze fetches summaries and runs the statistical kernel.
func (m *Manager) Analyze(ctx context.Context, experimentID string) (*datatypes.ExperimentStats, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	summaries, err := m.store.SummarizePerVariant(ctx, experimentID, exp.Metrics)
	if err != nil {
		return nil, err
	}

	result := stats.Analyze(exp, summaries)
	if result.StatisticalSignificance {
		m.metrics.SignificantResultsTotal.WithLabelValues(experimentID).Inc()
	}
	return &result, nil
}
