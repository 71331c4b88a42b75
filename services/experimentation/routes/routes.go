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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/fawkes/services/experimentation/handlers"
	"github.com/AleutianAI/fawkes/services/experimentation/middleware"
	"github.com/AleutianAI/fawkes/services/experimentation/observability"
)

// SetupRoutes registers the experimentation API surface.
//
// Experiment administration (create, update, delete, lifecycle) sits behind
// the admin bearer token. Assignment, tracking, and stats are open to SDK
// callers.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, metrics *observability.Metrics, adminToken string) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		experiments := v1.Group("/experiments")
		{
			experiments.GET("", h.ListExperiments)
			experiments.GET("/:id", h.GetExperiment)
			experiments.POST("/:id/assign", h.AssignVariant)
			experiments.POST("/:id/track", h.TrackEvent)
			experiments.GET("/:id/stats", h.GetStats)

			admin := experiments.Group("")
			admin.Use(middleware.AdminAuth(adminToken))
			{
				admin.POST("", h.CreateExperiment)
				admin.PUT("/:id", h.UpdateExperiment)
				admin.DELETE("/:id", h.DeleteExperiment)
				admin.POST("/:id/start", h.StartExperiment)
				admin.POST("/:id/stop", h.StopExperiment)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}
