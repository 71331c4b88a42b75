// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/AleutianAI/fawkes/services/rag/datatypes"
	"github.com/AleutianAI/fawkes/services/rag/vectorstore"
	"github.com/AleutianAI/fawkes/services/rag/walker"
)

// sliceSource yields a fixed set of documents.
type sliceSource struct {
	docs []walker.Document
	err  error
}

func (s *sliceSource) Walk(ctx context.Context, emit func(walker.Document) error) error {
	for _, doc := range s.docs {
		if err := emit(doc); err != nil {
			return err
		}
	}
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDocs() []walker.Document {
	return []walker.Document{
		{Filepath: "docs/guide.md", Title: "Guide", Content: "How the platform works.", Category: "doc"},
		{Filepath: "docs/adr/001.md", Title: "ADR 001", Content: "We chose Weaviate.", Category: "adr"},
		{Filepath: "README.md", Title: "Readme", Content: "Project overview.", Category: "readme"},
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	b := ContentHash("hello")
	c := ContentHash("hello!")

	if a != b {
		t.Error("hash not deterministic")
	}
	if a == c {
		t.Error("different content, same hash")
	}
	if len(a) != 32 {
		t.Errorf("hash length %d, want 32 hex chars", len(a))
	}
}

func TestRunIndexesEverything(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ix := New(store, Options{}, testLogger())

	summary, err := ix.Run(context.Background(), &sliceSource{docs: testDocs()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.FilesSeen != 3 || summary.Indexed != 3 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.TotalChunks != 3 {
		t.Errorf("chunks = %d, want one per short document", summary.TotalChunks)
	}
	if store.Count() != 3 {
		t.Errorf("stored chunks = %d", store.Count())
	}

	chunks := store.ChunksFor("docs/guide.md")
	if len(chunks) != 1 {
		t.Fatalf("chunks for guide = %d", len(chunks))
	}
	c := chunks[0]
	if c.Title != "Guide" || c.Category != "doc" || c.ChunkIndex != 0 {
		t.Errorf("chunk = %+v", c)
	}
	if c.FileHash != ContentHash("How the platform works.") {
		t.Errorf("hash = %q", c.FileHash)
	}
	if c.IndexedAt == "" {
		t.Error("indexed_at not stamped")
	}
}

func TestRunSkipsUnchanged(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	src := &sliceSource{docs: testDocs()}

	if _, err := New(store, Options{}, testLogger()).Run(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	summary, err := New(store, Options{}, testLogger()).Run(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if summary.SkippedUnchanged != 3 || summary.Indexed != 0 {
		t.Errorf("summary = %+v, want everything skipped", summary)
	}
}

func TestRunReindexesModified(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	docs := testDocs()

	if _, err := New(store, Options{}, testLogger()).Run(context.Background(), &sliceSource{docs: docs}); err != nil {
		t.Fatal(err)
	}

	// A longer replacement splits into more chunks; stale ones must go.
	long := strings.Repeat("New paragraph of guide text.\n\n", 200)
	docs[0].Content = long

	summary, err := New(store, Options{}, testLogger()).Run(context.Background(), &sliceSource{docs: docs})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 || summary.SkippedUnchanged != 2 {
		t.Errorf("summary = %+v", summary)
	}

	chunks := store.ChunksFor("docs/guide.md")
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want a multi-chunk document", len(chunks))
	}
	newHash := ContentHash(long)
	for i, c := range chunks {
		if c.FileHash != newHash {
			t.Errorf("chunk %d carries a stale hash", i)
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk order broken: index %d at position %d", c.ChunkIndex, i)
		}
	}
}

func TestRunForce(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	src := &sliceSource{docs: testDocs()}

	if _, err := New(store, Options{}, testLogger()).Run(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	summary, err := New(store, Options{Force: true}, testLogger()).Run(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 3 || summary.SkippedUnchanged != 0 {
		t.Errorf("summary = %+v, want force to reindex everything", summary)
	}
}

func TestRunDryRun(t *testing.T) {
	store := vectorstore.NewMemoryStore()

	summary, err := New(store, Options{DryRun: true}, testLogger()).Run(context.Background(), &sliceSource{docs: testDocs()})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 3 || summary.TotalChunks != 3 {
		t.Errorf("summary = %+v", summary)
	}
	if store.Count() != 0 {
		t.Errorf("dry run wrote %d chunks", store.Count())
	}
}

func TestRunSkipsEmpty(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	docs := []walker.Document{
		{Filepath: "docs/empty.md", Title: "Empty", Content: "", Category: "doc"},
		{Filepath: "docs/real.md", Title: "Real", Content: "Text.", Category: "doc"},
	}

	summary, err := New(store, Options{}, testLogger()).Run(context.Background(), &sliceSource{docs: docs})
	if err != nil {
		t.Fatal(err)
	}
	if summary.SkippedEmpty != 1 || summary.Indexed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// upsertFailStore wraps the memory store and fails upserts for one filepath.
type upsertFailStore struct {
	*vectorstore.MemoryStore
	failPath string
}

func (f *upsertFailStore) UpsertBatch(ctx context.Context, chunks []datatypes.DocumentChunk) (int, error) {
	if len(chunks) > 0 && chunks[0].Filepath == f.failPath {
		return 0, errors.New("batch rejected")
	}
	return f.MemoryStore.UpsertBatch(ctx, chunks)
}

func TestRunCountsPerDocumentErrors(t *testing.T) {
	store := &upsertFailStore{MemoryStore: vectorstore.NewMemoryStore(), failPath: "docs/broken.md"}
	docs := []walker.Document{
		{Filepath: "docs/broken.md", Title: "Broken", Content: "Will fail.", Category: "doc"},
		{Filepath: "docs/fine.md", Title: "Fine", Content: "Will pass.", Category: "doc"},
	}

	summary, err := New(store, Options{Workers: 1}, testLogger()).Run(context.Background(), &sliceSource{docs: docs})
	if err != nil {
		t.Fatalf("per-document failure must not abort the run: %v", err)
	}
	if summary.Errors != 1 || summary.Indexed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunSourceErrorAborts(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	sentinel := errors.New("walk failed")

	_, err := New(store, Options{}, testLogger()).Run(context.Background(), &sliceSource{err: sentinel})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want the source error", err)
	}
}
