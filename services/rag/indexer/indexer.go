// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package indexer drives the chunk-and-upsert pipeline from a document
// source into the vector store.
package indexer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/fawkes/services/rag/chunker"
	"github.com/AleutianAI/fawkes/services/rag/datatypes"
	"github.com/AleutianAI/fawkes/services/rag/vectorstore"
	"github.com/AleutianAI/fawkes/services/rag/walker"
)

// defaultWorkers bounds concurrent per-document store operations.
const defaultWorkers = 4

// Options configure one indexing run.
type Options struct {
	// DryRun reports what would be indexed without touching the store.
	DryRun bool
	// Force re-indexes documents even when their hash is unchanged.
	Force bool
	// Workers is the number of concurrent document pipelines. Zero means
	// defaultWorkers.
	Workers int
}

// Summary is the outcome of a run. Errors counts documents that failed;
// the run itself keeps going past individual failures.
type Summary struct {
	FilesSeen        int
	Indexed          int
	SkippedUnchanged int
	SkippedEmpty     int
	Errors           int
	TotalChunks      int
	Elapsed          time.Duration
}

// Indexer chunks documents and writes them to the vector store.
type Indexer struct {
	store  vectorstore.Store
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	summary Summary
}

// New creates an indexer. A nil logger uses the process default.
func New(store vectorstore.Store, opts Options, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Indexer{store: store, opts: opts, logger: logger}
}

// ContentHash returns the MD5 hex digest used for change detection.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Run walks the source and indexes every document it yields.
//
// Description:
//
//	Documents stream from the source into a bounded worker pool. Each
//	worker hashes the document, skips it when the stored hash matches,
//	and otherwise deletes the document's previous chunks and batch-writes
//	the new ones under deterministic ids. A failed document increments
//	Errors without stopping the run; only source failures and context
//	cancellation abort.
//
// Inputs:
//
//	ctx - Context for cancellation
//	source - Document source (local tree or GitHub)
//
// Outputs:
//
//	*Summary - Counters for the run, valid even on error
//	error - Non-nil when the walk itself failed
func (ix *Indexer) Run(ctx context.Context, source walker.Source) (*Summary, error) {
	start := time.Now()
	ix.summary = Summary{}

	if !ix.opts.DryRun {
		if err := ix.store.EnsureSchema(ctx); err != nil {
			return &ix.summary, err
		}
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	docs := make(chan walker.Document)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(docs)
		return source.Walk(gctx, func(doc walker.Document) error {
			select {
			case docs <- doc:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	for i := 0; i < ix.opts.Workers; i++ {
		g.Go(func() error {
			for doc := range docs {
				if err := gctx.Err(); err != nil {
					return err
				}
				ix.indexOne(gctx, doc, timestamp)
			}
			return nil
		})
	}

	err := g.Wait()
	ix.summary.Elapsed = time.Since(start)
	return &ix.summary, err
}

func (ix *Indexer) indexOne(ctx context.Context, doc walker.Document, timestamp string) {
	ix.count(func(s *Summary) { s.FilesSeen++ })

	if doc.Content == "" {
		ix.count(func(s *Summary) { s.SkippedEmpty++ })
		return
	}

	hash := ContentHash(doc.Content)

	if !ix.opts.Force && !ix.opts.DryRun {
		stored, err := ix.store.FetchFileHash(ctx, doc.Filepath)
		if err != nil {
			// Unreadable state means reindex, not failure.
			ix.logger.Warn("hash lookup failed, reindexing", "filepath", doc.Filepath, "error", err)
		} else if stored == hash {
			ix.count(func(s *Summary) { s.SkippedUnchanged++ })
			return
		}
	}

	pieces := chunker.Split(doc.Content, chunker.MaxChunkChars)

	if ix.opts.DryRun {
		ix.logger.Info("would index",
			"filepath", doc.Filepath, "title", doc.Title,
			"category", doc.Category, "chunks", len(pieces))
		ix.count(func(s *Summary) {
			s.Indexed++
			s.TotalChunks += len(pieces)
		})
		return
	}

	deleted, err := ix.store.DeleteByFilepath(ctx, doc.Filepath)
	if err != nil {
		ix.logger.Error("failed to delete stale chunks", "filepath", doc.Filepath, "error", err)
		ix.count(func(s *Summary) { s.Errors++ })
		return
	}
	if deleted > 0 {
		ix.logger.Debug("deleted stale chunks", "filepath", doc.Filepath, "count", deleted)
	}

	chunks := make([]datatypes.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = datatypes.DocumentChunk{
			Title:      doc.Title,
			Content:    piece,
			Filepath:   doc.Filepath,
			Category:   doc.Category,
			FileHash:   hash,
			ChunkIndex: i,
			IndexedAt:  timestamp,
		}
	}

	written, err := ix.store.UpsertBatch(ctx, chunks)
	if err != nil {
		ix.logger.Error("failed to index document", "filepath", doc.Filepath, "error", err)
		ix.count(func(s *Summary) { s.Errors++ })
		return
	}

	ix.logger.Info("indexed document", "filepath", doc.Filepath, "chunks", written)
	ix.count(func(s *Summary) {
		s.Indexed++
		s.TotalChunks += written
	})
}

func (ix *Indexer) count(update func(*Summary)) {
	ix.mu.Lock()
	update(&ix.summary)
	ix.mu.Unlock()
}
