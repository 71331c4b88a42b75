// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/fawkes/pkg/tracing"
	"github.com/AleutianAI/fawkes/services/experimentation/handlers"
	"github.com/AleutianAI/fawkes/services/experimentation/manager"
	"github.com/AleutianAI/fawkes/services/experimentation/middleware"
	"github.com/AleutianAI/fawkes/services/experimentation/observability"
	"github.com/AleutianAI/fawkes/services/experimentation/routes"
	"github.com/AleutianAI/fawkes/services/experimentation/store"
	"github.com/AleutianAI/fawkes/services/experimentation/store/postgres"
)

func main() {
	// .env is optional; container deployments inject everything through
	// the environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded configuration from .env")
	}

	port := os.Getenv("EXPERIMENTATION_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := tracing.Init("experimentation-service")
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		slog.Warn("ADMIN_TOKEN is not set, admin endpoints will reject all requests")
	}

	var backing store.Store
	if dsn := strings.Trim(os.Getenv("DATABASE_URL"), "\"' "); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		db, err := postgres.New(ctx, dsn, logger)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer db.Close()
		backing = db
		slog.Info("using postgres experiment store")
	} else {
		backing = store.NewMemoryStore()
		slog.Warn("DATABASE_URL not set, using in-memory experiment store. " +
			"Experiments will not survive a restart.")
	}

	metrics := observability.New()
	mgr := manager.New(backing, metrics, logger)
	h := handlers.New(mgr, metrics)

	var allowedOrigins []string
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("experimentation-service"))
	router.Use(middleware.CORS(allowedOrigins))

	routes.SetupRoutes(router, h, metrics, adminToken)

	log.Println("Starting the experimentation server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
