// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the RAG retrieval API over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/fawkes/services/rag/datatypes"
	"github.com/AleutianAI/fawkes/services/rag/observability"
	"github.com/AleutianAI/fawkes/services/rag/retrieval"
	"github.com/AleutianAI/fawkes/services/rag/vectorstore"
)

const serviceVersion = "0.1.0"

// Handlers bundles the retrieval service for route registration.
type Handlers struct {
	retrieval   *retrieval.Service
	metrics     *observability.Metrics
	weaviateURL string
}

// New creates the handler set. weaviateURL is echoed in health responses.
func New(svc *retrieval.Service, metrics *observability.Metrics, weaviateURL string) *Handlers {
	return &Handlers{retrieval: svc, metrics: metrics, weaviateURL: weaviateURL}
}

// Root lists the service's endpoints.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "rag-service",
		"status":  "running",
		"version": serviceVersion,
		"endpoints": gin.H{
			"query":   "/api/v1/query",
			"health":  "/api/v1/health",
			"stats":   "/api/v1/stats",
			"metrics": "/metrics",
		},
	})
}

// Health reports liveness plus vector store reachability. The service
// stays up without Weaviate but flags itself DEGRADED.
func (h *Handlers) Health(c *gin.Context) {
	connected := h.retrieval.Ready(c.Request.Context())
	status := "UP"
	if !connected {
		status = "DEGRADED"
	}
	h.observe(c, http.StatusOK)
	c.JSON(http.StatusOK, datatypes.HealthResponse{
		Status:            status,
		Service:           "rag-service",
		Version:           serviceVersion,
		WeaviateConnected: connected,
		WeaviateURL:       h.weaviateURL,
	})
}

// Ready is the readiness probe: 200 only when Weaviate answers.
func (h *Handlers) Ready(c *gin.Context) {
	if !h.retrieval.Ready(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "READY"})
}

// queryTimeout bounds a single retrieval call.
const queryTimeout = 10 * time.Second

// Query handles POST /api/v1/query.
func (h *Handlers) Query(c *gin.Context) {
	var req datatypes.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.observe(c, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	resp, err := h.retrieval.Query(ctx, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.observe(c, http.StatusOK)
	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(c *gin.Context) {
	resp, err := h.retrieval.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.observe(c, http.StatusOK)
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	if errors.Is(err, vectorstore.ErrUnavailable) {
		h.observe(c, http.StatusServiceUnavailable)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vector store unavailable"})
		return
	}
	slog.Error("unhandled error", "path", c.FullPath(), "error", err)
	h.observe(c, http.StatusInternalServerError)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (h *Handlers) observe(c *gin.Context, status int) {
	h.metrics.RequestsTotal.
		WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).
		Inc()
}
