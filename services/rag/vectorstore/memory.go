// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/fawkes/services/rag/datatypes"
)

// MemoryStore is an in-process Store used in tests and dry runs. Relevance
// is term overlap between query and content, which is enough to exercise
// ordering and threshold handling without a vectorizer.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]datatypes.DocumentChunk // keyed by ChunkID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]datatypes.DocumentChunk)}
}

func (s *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *MemoryStore) FetchFileHash(ctx context.Context, filepath string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunk := range s.chunks {
		if chunk.Filepath == filepath {
			return chunk.FileHash, nil
		}
	}
	return "", nil
}

func (s *MemoryStore) DeleteByFilepath(ctx context.Context, filepath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, chunk := range s.chunks {
		if chunk.Filepath == filepath {
			delete(s.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, chunks []datatypes.DocumentChunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.chunks[string(ChunkID(chunk.Filepath, chunk.ChunkIndex))] = chunk
	}
	return len(chunks), nil
}

func (s *MemoryStore) NearText(ctx context.Context, query string, limit int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	scored := make([]ScoredChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		content := strings.ToLower(chunk.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		certainty := 0.0
		if len(terms) > 0 {
			certainty = float64(matched) / float64(len(terms))
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Certainty: certainty})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Certainty > scored[j].Certainty
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *MemoryStore) ListForStats(ctx context.Context, cap int) ([]datatypes.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]datatypes.DocumentChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
		if cap > 0 && len(chunks) >= cap {
			break
		}
	}
	return chunks, nil
}

func (s *MemoryStore) Ready(ctx context.Context) bool { return true }

// Count returns the number of stored chunks.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// ChunksFor returns the stored chunks for one document ordered by index.
func (s *MemoryStore) ChunksFor(filepath string) []datatypes.DocumentChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []datatypes.DocumentChunk
	for _, chunk := range s.chunks {
		if chunk.Filepath == filepath {
			out = append(out, chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}
