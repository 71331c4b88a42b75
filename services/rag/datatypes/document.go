// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the document model shared by the indexer and
// the retrieval service.
package datatypes

import (
	"github.com/weaviate/weaviate/entities/models"
)

// DocumentClassName is the Weaviate class holding indexed document chunks.
const DocumentClassName = "FawkesDocument"

// DocumentChunk is one indexed unit of a source document. A document is
// split into chunks before vectorization; Filepath plus ChunkIndex identify
// a chunk, FileHash identifies the source content that produced it.
type DocumentChunk struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Filepath   string `json:"filepath"`
	Category   string `json:"category"`
	FileHash   string `json:"fileHash"`
	ChunkIndex int    `json:"chunkIndex"`
	IndexedAt  string `json:"indexed_at"`
}

// GetDocumentSchema returns the Weaviate class definition for document
// chunks. An empty class name uses DocumentClassName. Vectorization is
// delegated to the text2vec-transformers module running alongside Weaviate;
// metadata properties skip it so only title and content feed the vector.
func GetDocumentSchema(class string) *models.Class {
	if class == "" {
		class = DocumentClassName
	}
	indexFilterable := new(bool)
	*indexFilterable = true
	skipVectorize := map[string]interface{}{
		"text2vec-transformers": map[string]interface{}{"skip": true},
	}

	return &models.Class{
		Class:       class,
		Description: "Chunked platform documentation for semantic retrieval",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Human readable document title",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Chunk text",
				Tokenization: "word",
			},
			{
				Name:            "filepath",
				DataType:        []string{"text"},
				Description:     "Source path, unique per document",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skipVectorize,
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Document category: adr, doc, readme, platform, infrastructure, code, config, github",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skipVectorize,
			},
			{
				Name:            "fileHash",
				DataType:        []string{"text"},
				Description:     "MD5 of the full source file, used for change detection",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skipVectorize,
			},
			{
				Name:         "chunkIndex",
				DataType:     []string{"int"},
				Description:  "Position of this chunk within its document",
				ModuleConfig: skipVectorize,
			},
			{
				Name:         "indexed_at",
				DataType:     []string{"date"},
				Description:  "RFC 3339 timestamp of the indexing run",
				ModuleConfig: skipVectorize,
			},
		},
	}
}
