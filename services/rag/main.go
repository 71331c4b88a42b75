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
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/fawkes/pkg/tracing"
	"github.com/AleutianAI/fawkes/services/rag/handlers"
	"github.com/AleutianAI/fawkes/services/rag/observability"
	"github.com/AleutianAI/fawkes/services/rag/retrieval"
	"github.com/AleutianAI/fawkes/services/rag/routes"
	"github.com/AleutianAI/fawkes/services/rag/vectorstore"
)

// envInt parses an integer env var, 0 when unset or malformed.
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

// envFloat parses a float env var, 0 when unset or malformed.
func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded configuration from .env")
	}

	port := os.Getenv("RAG_PORT")
	if port == "" {
		port = "12320"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := tracing.Init("rag-service")
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_URL"), "\"' ")
	if weaviateURL == "" {
		weaviateURL = "http://localhost:8080"
		slog.Warn("WEAVIATE_URL not set, defaulting", "url", weaviateURL)
	}

	store, err := vectorstore.NewWeaviate(weaviateURL)
	if err != nil {
		log.Fatalf("failed to create Weaviate client: %v", err)
	}
	store.SetClass(os.Getenv("SCHEMA_NAME"))

	// Schema creation is best effort at boot; the indexer also ensures it
	// and health reports DEGRADED until Weaviate is reachable.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("could not ensure schema at startup", "error", err)
	}
	cancel()

	metrics := observability.New()
	svc := retrieval.New(store, metrics, logger)
	svc.SetDefaults(envInt("DEFAULT_TOP_K"), envFloat("DEFAULT_THRESHOLD"))
	h := handlers.New(svc, metrics, weaviateURL)

	router := gin.Default()
	router.Use(otelgin.Middleware("rag-service"))

	routes.SetupRoutes(router, h, metrics)

	log.Println("Starting the RAG server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
