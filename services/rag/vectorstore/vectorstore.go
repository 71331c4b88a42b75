// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore abstracts the chunk store behind a small port so the
// indexer and the retrieval service can run against Weaviate in production
// and an in-memory double in tests.
package vectorstore

import (
	"context"
	"errors"

	"github.com/AleutianAI/fawkes/services/rag/datatypes"
)

// ErrUnavailable wraps backend connectivity failures.
var ErrUnavailable = errors.New("vectorstore: unavailable")

// ScoredChunk pairs a stored chunk with the similarity score the backend
// assigned for the current query. Certainty is in [0, 1], higher is closer.
type ScoredChunk struct {
	Chunk     datatypes.DocumentChunk
	Certainty float64
}

// Store is the port the indexer and retrieval layers depend on.
type Store interface {
	// EnsureSchema creates the chunk class if it does not exist yet.
	EnsureSchema(ctx context.Context) error

	// FetchFileHash returns the stored fileHash for a document, or "" when
	// the document has never been indexed.
	FetchFileHash(ctx context.Context, filepath string) (string, error)

	// DeleteByFilepath removes every chunk belonging to one document and
	// returns the number of chunks removed.
	DeleteByFilepath(ctx context.Context, filepath string) (int, error)

	// UpsertBatch writes chunks with deterministic ids derived from
	// filepath and chunk index, and returns how many were accepted.
	UpsertBatch(ctx context.Context, chunks []datatypes.DocumentChunk) (int, error)

	// NearText runs a semantic search and returns up to limit chunks with
	// their certainty scores, best first.
	NearText(ctx context.Context, query string, limit int) ([]ScoredChunk, error)

	// ListForStats fetches chunk metadata for index statistics. The scan is
	// capped at the given number of chunks.
	ListForStats(ctx context.Context, cap int) ([]datatypes.DocumentChunk, error)

	// Ready reports whether the backend is reachable.
	Ready(ctx context.Context) bool
}
