// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements semantic search and index statistics on top
// of the vector store port.
package retrieval

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/fawkes/services/rag/datatypes"
	"github.com/AleutianAI/fawkes/services/rag/observability"
	"github.com/AleutianAI/fawkes/services/rag/vectorstore"
)

const (
	// DefaultTopK is the result count when the request omits top_k.
	DefaultTopK = 5

	// DefaultThreshold is the minimum certainty when the request omits
	// threshold.
	DefaultThreshold = 0.7

	// maxStatsChunks caps the stats scan to keep memory bounded on large
	// indexes. Counts above the cap are reported as the cap.
	maxStatsChunks = 10000

	// avgChunksPerDocument estimates unique document count from chunk
	// count. Chunk rows carry no document id beyond the filepath and a
	// full distinct scan is too expensive for a stats endpoint.
	avgChunksPerDocument = 3
)

// Service answers queries and stats against the chunk index.
type Service struct {
	store   vectorstore.Store
	metrics *observability.Metrics
	logger  *slog.Logger

	topK      int
	threshold float64
}

// New creates the retrieval service. A nil logger uses the process default.
func New(store vectorstore.Store, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		metrics:   metrics,
		logger:    logger,
		topK:      DefaultTopK,
		threshold: DefaultThreshold,
	}
}

// SetDefaults overrides the fallback top_k and threshold used for requests
// that omit them. Non-positive topK and out-of-range threshold values keep
// the current defaults.
func (s *Service) SetDefaults(topK int, threshold float64) {
	if topK > 0 {
		s.topK = topK
	}
	if threshold > 0 && threshold <= 1 {
		s.threshold = threshold
	}
}

// Query runs a semantic search.
//
// Description:
//
//	Searches the chunk index for the request's query text and keeps only
//	results at or above the certainty threshold. Results come back in
//	backend order, best match first. An empty result set is a normal
//	response, not an error.
//
// Inputs:
//
//	ctx - Context for cancellation
//	req - Validated query request; zero TopK and nil Threshold take the
//	service defaults
//
// Outputs:
//
//	*datatypes.QueryResponse - Ranked, threshold-filtered results
//	error - Non-nil when the backend search failed
func (s *Service) Query(ctx context.Context, req *datatypes.QueryRequest) (*datatypes.QueryResponse, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}
	threshold := s.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	start := time.Now()
	scored, err := s.store.NearText(ctx, req.Query, topK)
	elapsed := time.Since(start)
	s.metrics.QueryDuration.Observe(elapsed.Seconds())
	if err != nil {
		return nil, err
	}

	results := make([]datatypes.QueryResult, 0, len(scored))
	for _, sc := range scored {
		if sc.Certainty < threshold {
			continue
		}
		s.metrics.RelevanceScore.Observe(sc.Certainty)
		results = append(results, datatypes.QueryResult{
			Content:        sc.Chunk.Content,
			RelevanceScore: math.Round(sc.Certainty*1000) / 1000,
			Source:         sc.Chunk.Filepath,
			Title:          sc.Chunk.Title,
			Category:       sc.Chunk.Category,
		})
	}

	s.logger.Info("query completed",
		"query", req.Query, "results", len(results),
		"elapsed_ms", elapsed.Milliseconds())

	return &datatypes.QueryResponse{
		Query:           req.Query,
		Results:         results,
		Count:           len(results),
		RetrievalTimeMS: math.Round(float64(elapsed.Microseconds())/10) / 100,
	}, nil
}

// Stats summarizes the index.
//
// Description:
//
//	Scans chunk metadata up to a fixed cap and derives chunk totals, a
//	per-category breakdown, an estimated unique document count, rough
//	storage usage, and index freshness from the newest indexed_at
//	timestamp.
//
// Outputs:
//
//	*datatypes.StatsResponse - Index statistics
//	error - Non-nil when the scan failed
func (s *Service) Stats(ctx context.Context) (*datatypes.StatsResponse, error) {
	chunks, err := s.store.ListForStats(ctx, maxStatsChunks)
	if err != nil {
		return nil, err
	}

	categories := make(map[string]int)
	lastIndexed := ""
	storageChars := 0
	for _, chunk := range chunks {
		category := chunk.Category
		if category == "" {
			category = "unknown"
		}
		categories[category]++
		if chunk.IndexedAt > lastIndexed {
			lastIndexed = chunk.IndexedAt
		}
		storageChars += len(chunk.Content)
	}

	var freshness *float64
	if lastIndexed != "" {
		if ts, err := time.Parse(time.RFC3339, lastIndexed); err == nil {
			hours := math.Round(time.Since(ts).Hours()*100) / 100
			freshness = &hours
		} else {
			s.logger.Warn("failed to parse indexed_at timestamp", "value", lastIndexed, "error", err)
		}
	}

	totalChunks := len(chunks)
	uniqueDocs := totalChunks / avgChunksPerDocument
	if uniqueDocs < 1 {
		uniqueDocs = 1
	}

	// 1 char is roughly 1 byte of text plus half again for metadata.
	storageMB := math.Round(float64(storageChars)*1.5/(1024*1024)*100) / 100

	return &datatypes.StatsResponse{
		TotalDocuments:      uniqueDocs,
		TotalChunks:         totalChunks,
		Categories:          categories,
		LastIndexed:         lastIndexed,
		IndexFreshnessHours: freshness,
		StorageUsageMB:      storageMB,
	}, nil
}

// Ready reports vector store reachability.
func (s *Service) Ready(ctx context.Context) bool {
	return s.store.Ready(ctx)
}
