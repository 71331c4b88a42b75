// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package walker discovers documents to index. Sources yield documents one
// at a time so the indexer never holds a whole corpus in memory.
package walker

import (
	"context"
	"path"
	"strings"
	"unicode"
)

// Document is one discovered source document before chunking.
type Document struct {
	// Filepath is the logical index key: a repo-relative path for local
	// files, or "github:{owner/repo}:{path}" for remote ones.
	Filepath string
	Title    string
	Content  string
	Category string
}

// Source yields documents to the emit callback. A non-nil error from emit
// aborts the walk and is returned unchanged.
type Source interface {
	Walk(ctx context.Context, emit func(Document) error) error
}

// FileExtensions maps indexable extensions to their language label.
var FileExtensions = map[string]string{
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".py":   "python",
	".sh":   "shell",
	".go":   "go",
	".java": "java",
	".js":   "javascript",
	".ts":   "typescript",
	".json": "json",
	".tf":   "terraform",
	".hcl":  "hcl",
}

// ExcludePatterns are path fragments that disqualify a file from indexing.
var ExcludePatterns = []string{
	"node_modules",
	".git",
	"__pycache__",
	".terraform",
	"vendor",
	"target",
	"build",
	"dist",
	".venv",
	"venv",
}

// ShouldExclude reports whether any exclude pattern appears in the path.
func ShouldExclude(p string) bool {
	for _, pattern := range ExcludePatterns {
		if strings.Contains(p, pattern) {
			return true
		}
	}
	return false
}

var codeExtensions = map[string]bool{
	".py": true, ".go": true, ".java": true, ".js": true, ".ts": true,
}

// Categorize buckets a file by its repository location and extension.
func Categorize(filepath string) string {
	base := path.Base(filepath)
	stem := strings.TrimSuffix(base, path.Ext(base))

	switch {
	case strings.Contains(filepath, "docs/adr") || strings.Contains(strings.ToUpper(stem), "ADR"):
		return "adr"
	case strings.Contains(filepath, "docs/"):
		return "doc"
	case strings.Contains(strings.ToUpper(base), "README"):
		return "readme"
	case strings.Contains(filepath, "platform/"):
		return "platform"
	case strings.Contains(filepath, "infra/"):
		return "infrastructure"
	case codeExtensions[path.Ext(filepath)]:
		return "code"
	default:
		return "config"
	}
}

// ExtractTitle finds a markdown H1 in the first twenty lines, falling back
// to the filename with separators spaced out and words capitalized.
func ExtractTitle(content, filepath string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}

	base := path.Base(filepath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return titleCase(stem)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
