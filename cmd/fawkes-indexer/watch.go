// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/fawkes/pkg/logging"
	"github.com/AleutianAI/fawkes/services/rag/indexer"
	"github.com/AleutianAI/fawkes/services/rag/walker"
)

// debounceWindow coalesces bursts of filesystem events into one re-index.
// Editors fire several events per save.
const debounceWindow = 2 * time.Second

// watchAndReindex blocks until ctx is cancelled, re-running the indexer
// whenever an indexable file under the scan directories changes. The
// change-detection hashes make the repeated runs cheap: unchanged files
// skip immediately.
func watchAndReindex(ctx context.Context, logger *logging.Logger, ix *indexer.Indexer, basePath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	addRecursive := func(root string) {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if walker.ShouldExclude(p) {
					return filepath.SkipDir
				}
				if werr := watcher.Add(p); werr != nil {
					logger.Warn("failed to watch directory", "dir", p, "error", werr)
				}
			}
			return nil
		})
	}
	for _, dir := range walker.DefaultScanDirs {
		addRecursive(filepath.Join(basePath, dir))
	}

	logger.Info("watching for changes", "base_path", basePath)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if walker.ShouldExclude(event.Name) {
				continue
			}
			// New directories need their own watch before files inside
			// them produce events.
			if event.Op.Has(fsnotify.Create) {
				addRecursive(event.Name)
			}
			if _, indexable := walker.FileExtensions[filepath.Ext(event.Name)]; !indexable {
				continue
			}
			logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.AfterFunc(debounceWindow, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-fire:
			timer = nil
			source := walker.NewLocalSource(basePath, nil)
			summary, err := ix.Run(ctx, source)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("re-index failed", "error", err)
				continue
			}
			logSummary(logger, summary)
		}
	}
}
