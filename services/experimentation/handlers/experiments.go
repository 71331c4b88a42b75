// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers maps HTTP requests onto the experiment manager.
//
// Error classification happens here: store sentinel kinds become status
// codes, and backend error text never reaches response bodies.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
	"github.com/AleutianAI/fawkes/services/experimentation/manager"
	"github.com/AleutianAI/fawkes/services/experimentation/observability"
	"github.com/AleutianAI/fawkes/services/experimentation/store"
)

var tracer = otel.Tracer("fawkes.experimentation.handlers")

// Handlers bundles the manager and metrics for route registration.
type Handlers struct {
	manager *manager.Manager
	metrics *observability.Metrics
}

// New creates the handler set.
func New(m *manager.Manager, metrics *observability.Metrics) *Handlers {
	return &Handlers{manager: m, metrics: metrics}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "experimentation"})
}

// CreateExperiment handles POST /api/v1/experiments.
func (h *Handlers) CreateExperiment(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateExperiment")
	defer span.End()
	defer h.observe(c, time.Now())

	var req datatypes.ExperimentCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	exp, err := h.manager.Create(ctx, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

// ListExperiments handles GET /api/v1/experiments.
func (h *Handlers) ListExperiments(c *gin.Context) {
	defer h.observe(c, time.Now())

	filter := store.ListFilter{
		Status: c.Query("status"),
		Skip:   intQuery(c, "skip", 0),
		Limit:  intQuery(c, "limit", 100),
	}
	if filter.Skip < 0 || filter.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "skip and limit must be non-negative"})
		return
	}

	list, err := h.manager.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetExperiment handles GET /api/v1/experiments/{id}.
func (h *Handlers) GetExperiment(c *gin.Context) {
	defer h.observe(c, time.Now())

	exp, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// UpdateExperiment handles PUT /api/v1/experiments/{id}.
func (h *Handlers) UpdateExperiment(c *gin.Context) {
	defer h.observe(c, time.Now())

	var patch datatypes.ExperimentUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	exp, err := h.manager.Update(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// DeleteExperiment handles DELETE /api/v1/experiments/{id}.
func (h *Handlers) DeleteExperiment(c *gin.Context) {
	defer h.observe(c, time.Now())

	if err := h.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "experiment deleted successfully"})
}

// StartExperiment handles POST /api/v1/experiments/{id}/start.
func (h *Handlers) StartExperiment(c *gin.Context) {
	defer h.observe(c, time.Now())

	exp, err := h.manager.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// StopExperiment handles POST /api/v1/experiments/{id}/stop.
func (h *Handlers) StopExperiment(c *gin.Context) {
	defer h.observe(c, time.Now())

	exp, err := h.manager.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// AssignVariant handles POST /api/v1/experiments/{id}/assign.
//
// An experiment that is not running, or a user outside the traffic slice,
// yields 200 with {"assignment": null}. 404 means the experiment id itself
// is unknown. The null body keeps "no assignment" distinct from errors for
// clients polling during a ramp.
func (h *Handlers) AssignVariant(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "AssignVariant")
	defer span.End()
	defer h.observe(c, time.Now())

	var req datatypes.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.manager.AssignVariant(ctx, c.Param("id"), req.UserID, req.Context)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.AssignResponse{Assignment: a})
}

// TrackEvent handles POST /api/v1/experiments/{id}/track.
//
// 204 on success; 204 as well when the user has no assignment, since dropped
// events are a normal outcome for clients racing assignment.
func (h *Handlers) TrackEvent(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "TrackEvent")
	defer span.End()
	defer h.observe(c, time.Now())

	var req datatypes.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	value := 1.0
	if req.Value != nil {
		value = *req.Value
	}

	tracked, err := h.manager.TrackEvent(ctx, c.Param("id"), req.UserID, req.EventName, value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !tracked {
		slog.Debug("dropped event without assignment",
			"experiment_id", c.Param("id"), "user_id", req.UserID, "event", req.EventName)
	}
	c.Status(http.StatusNoContent)
}

// GetStats handles GET /api/v1/experiments/{id}/stats.
func (h *Handlers) GetStats(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetStats")
	defer span.End()
	defer h.observe(c, time.Now())

	result, err := h.manager.Analyze(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeError maps store error kinds to HTTP statuses. Unclassified errors are
// logged with the request path and surface as an opaque 500.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate resource"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		slog.Error("unhandled error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// observe records request duration for the completed handler.
func (h *Handlers) observe(c *gin.Context, start time.Time) {
	h.metrics.RequestDuration.
		WithLabelValues(c.FullPath(), c.Request.Method).
		Observe(time.Since(start).Seconds())
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
