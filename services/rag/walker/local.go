// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultScanDirs are the repository directories scanned for documents.
var DefaultScanDirs = []string{"docs", "platform", "infra"}

// LocalSource walks directories under a repository root.
type LocalSource struct {
	BasePath string
	ScanDirs []string
}

// NewLocalSource creates a source rooted at basePath. Empty scanDirs means
// DefaultScanDirs.
func NewLocalSource(basePath string, scanDirs []string) *LocalSource {
	if len(scanDirs) == 0 {
		scanDirs = DefaultScanDirs
	}
	return &LocalSource{BasePath: basePath, ScanDirs: scanDirs}
}

// Walk emits every indexable file under the scan directories in sorted
// path order. Missing scan directories are logged and skipped, not errors.
func (s *LocalSource) Walk(ctx context.Context, emit func(Document) error) error {
	var paths []string

	for _, dir := range s.ScanDirs {
		root := filepath.Join(s.BasePath, dir)
		if _, err := os.Stat(root); err != nil {
			slog.Warn("scan directory not found, skipping", "dir", root)
			continue
		}

		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if ShouldExclude(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if ShouldExclude(p) {
				return nil
			}
			if _, ok := FileExtensions[filepath.Ext(p)]; !ok {
				return nil
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return err
		}
	}

	sort.Strings(paths)

	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			slog.Error("failed to read file", "path", p, "error", err)
			continue
		}
		content := decodeContent(raw)
		if strings.TrimSpace(content) == "" {
			continue
		}

		rel, err := filepath.Rel(s.BasePath, p)
		if err != nil {
			rel = p
		}
		rel = filepath.ToSlash(rel)

		doc := Document{
			Filepath: rel,
			Title:    ExtractTitle(content, rel),
			Content:  content,
			Category: Categorize(rel),
		}
		if err := emit(doc); err != nil {
			return err
		}
	}
	return nil
}

// decodeContent interprets bytes as UTF-8, falling back to Latin-1 for
// files with legacy encodings so a stray byte never kills an indexing run.
func decodeContent(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
