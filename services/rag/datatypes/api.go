// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// QueryRequest is the body of a semantic search call. TopK and Threshold
// fall back to service defaults when omitted.
type QueryRequest struct {
	Query     string   `json:"query" binding:"required,min=1,max=2000"`
	TopK      int      `json:"top_k" binding:"omitempty,min=1,max=20"`
	Threshold *float64 `json:"threshold" binding:"omitempty,min=0,max=1"`
}

// QueryResult is one retrieved chunk with its relevance score.
type QueryResult struct {
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
	Source         string  `json:"source"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
}

// QueryResponse is the semantic search result set.
type QueryResponse struct {
	Query           string        `json:"query"`
	Results         []QueryResult `json:"results"`
	Count           int           `json:"count"`
	RetrievalTimeMS float64       `json:"retrieval_time_ms"`
}

// HealthResponse reports service liveness plus vector store reachability.
// Status is "UP" when Weaviate answers and "DEGRADED" when it does not.
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	Version           string `json:"version"`
	WeaviateConnected bool   `json:"weaviate_connected"`
	WeaviateURL       string `json:"weaviate_url"`
}

// StatsResponse summarizes the state of the index. TotalDocuments is an
// estimate derived from the chunk count; chunk rows do not carry a
// document id beyond the filepath and a full scan would be too expensive.
type StatsResponse struct {
	TotalDocuments      int            `json:"total_documents"`
	TotalChunks         int            `json:"total_chunks"`
	Categories          map[string]int `json:"categories"`
	LastIndexed         string         `json:"last_indexed,omitempty"`
	IndexFreshnessHours *float64       `json:"index_freshness_hours"`
	StorageUsageMB      float64        `json:"storage_usage_mb"`
}
