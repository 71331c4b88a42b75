// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/fawkes/services/rag/handlers"
	"github.com/AleutianAI/fawkes/services/rag/observability"
)

// SetupRoutes registers the RAG service API surface.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, metrics *observability.Metrics) {
	router.GET("/", h.Root)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/query", h.Query)
		v1.GET("/health", h.Health)
		v1.GET("/stats", h.Stats)
	}
}
