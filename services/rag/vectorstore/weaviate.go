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
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/fawkes/services/rag/datatypes"
)

// BatchSize is the number of chunks written per batch call.
const BatchSize = 100

// chunkNamespace seeds deterministic chunk ids. Re-indexing the same
// filepath and chunk index always produces the same object id, so a batch
// write after a delete can never leave duplicates.
var chunkNamespace = uuid.MustParse("8f2b0b9e-4c1d-4a62-9f35-28c4a7f0d9b1")

// ChunkID returns the deterministic Weaviate object id for one chunk.
func ChunkID(filepath string, index int) strfmt.UUID {
	id := uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:chunk:%d", filepath, index)))
	return strfmt.UUID(id.String())
}

// WeaviateStore implements Store against a Weaviate instance.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
}

// NewWeaviate builds a store from a base URL such as http://weaviate:8080.
func NewWeaviate(rawURL string) (*WeaviateStore, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	return &WeaviateStore{client: client, class: datatypes.DocumentClassName}, nil
}

// SetClass overrides the schema class name. The indexer and the retrieval
// service must agree on it. An empty name keeps the current class.
func (s *WeaviateStore) SetClass(name string) {
	if name != "" {
		s.class = name
	}
}

// EnsureSchema creates the document class if it doesn't exist. Idempotent.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	_, err := s.client.Schema().ClassGetter().
		WithClassName(s.class).Do(ctx)
	if err == nil {
		slog.Debug("document schema already exists", "class", s.class)
		return nil
	}

	slog.Info("creating document schema", "class", s.class)
	if err := s.client.Schema().ClassCreator().
		WithClass(datatypes.GetDocumentSchema(s.class)).Do(ctx); err != nil {
		return fmt.Errorf("creating schema class %s: %w", s.class, err)
	}
	return nil
}

// FetchFileHash returns the stored fileHash for a filepath, "" when the
// document was never indexed.
func (s *WeaviateStore) FetchFileHash(ctx context.Context, filepath string) (string, error) {
	where := filters.Where().
		WithPath([]string{"filepath"}).
		WithOperator(filters.Equal).
		WithValueText(filepath)

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "fileHash"}).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: fetching file hash: %v", ErrUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("fetching file hash: %s", result.Errors[0].Message)
	}

	for _, m := range s.objectsFromResult(result.Data) {
		return getString(m, "fileHash"), nil
	}
	return "", nil
}

// DeleteByFilepath removes all chunks of a document.
func (s *WeaviateStore) DeleteByFilepath(ctx context.Context, filepath string) (int, error) {
	where := filters.Where().
		WithPath([]string{"filepath"}).
		WithOperator(filters.Equal).
		WithValueText(filepath)

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("batch delete failed for %s: %w", filepath, err)
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	return int(resp.Results.Successful), nil
}

// UpsertBatch writes chunks in batches with deterministic object ids.
func (s *WeaviateStore) UpsertBatch(ctx context.Context, chunks []datatypes.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	written := 0
	for i := 0; i < len(chunks); i += BatchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		end := i + BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		objects := make([]*models.Object, len(batch))
		for j, chunk := range batch {
			objects[j] = &models.Object{
				Class: s.class,
				ID:    ChunkID(chunk.Filepath, chunk.ChunkIndex),
				Properties: map[string]interface{}{
					"title":      chunk.Title,
					"content":    chunk.Content,
					"filepath":   chunk.Filepath,
					"category":   chunk.Category,
					"fileHash":   chunk.FileHash,
					"chunkIndex": chunk.ChunkIndex,
					"indexed_at": chunk.IndexedAt,
				},
			}
		}

		result, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return written, fmt.Errorf("batch import failed: %w", err)
		}
		for _, obj := range result {
			if obj.Result != nil && obj.Result.Errors == nil {
				written++
			}
		}
	}
	return written, nil
}

// NearText runs a semantic search over chunk content.
func (s *WeaviateStore) NearText(ctx context.Context, query string, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "content"},
		{Name: "filepath"},
		{Name: "category"},
		{Name: "_additional { certainty distance }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: semantic search: %v", ErrUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	objects := s.objectsFromResult(result.Data)
	scored := make([]ScoredChunk, 0, len(objects))
	for _, m := range objects {
		certainty := 0.0
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if c, ok := additional["certainty"].(float64); ok {
				certainty = c
			}
		}
		scored = append(scored, ScoredChunk{
			Chunk: datatypes.DocumentChunk{
				Title:    getString(m, "title"),
				Content:  getString(m, "content"),
				Filepath: getString(m, "filepath"),
				Category: getString(m, "category"),
			},
			Certainty: certainty,
		})
	}
	return scored, nil
}

// ListForStats scans chunk metadata, capped to keep the stats endpoint cheap
// on large indexes.
func (s *WeaviateStore) ListForStats(ctx context.Context, cap int) ([]datatypes.DocumentChunk, error) {
	if cap <= 0 {
		cap = 10000
	}

	fields := []graphql.Field{
		{Name: "filepath"},
		{Name: "category"},
		{Name: "content"},
		{Name: "indexed_at"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithLimit(cap).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing chunks: %v", ErrUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("listing chunks: %s", result.Errors[0].Message)
	}

	objects := s.objectsFromResult(result.Data)
	chunks := make([]datatypes.DocumentChunk, 0, len(objects))
	for _, m := range objects {
		chunks = append(chunks, datatypes.DocumentChunk{
			Filepath:  getString(m, "filepath"),
			Category:  getString(m, "category"),
			Content:   getString(m, "content"),
			IndexedAt: getString(m, "indexed_at"),
		})
	}
	return chunks, nil
}

// Ready reports backend reachability via the readiness endpoint.
func (s *WeaviateStore) Ready(ctx context.Context) bool {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}

// objectsFromResult unwraps the Get payload of a GraphQL response.
func (s *WeaviateStore) objectsFromResult(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[s.class].([]interface{})
	if !ok {
		return nil
	}
	objects := make([]map[string]interface{}, 0, len(raw))
	for _, obj := range raw {
		if m, ok := obj.(map[string]interface{}); ok {
			objects = append(objects, m)
		}
	}
	return objects
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
