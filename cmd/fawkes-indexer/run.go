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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fawkes/pkg/logging"
	"github.com/AleutianAI/fawkes/services/rag/indexer"
	"github.com/AleutianAI/fawkes/services/rag/vectorstore"
	"github.com/AleutianAI/fawkes/services/rag/walker"
)

// newLogger builds the run logger from the shared flags.
func newLogger() (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(flagLogLevel),
		LogDir:  flagLogDir,
		Service: "indexer",
	})
}

// newStore connects to Weaviate unless this is a dry run, which uses the
// in-memory store so nothing needs to be reachable.
func newStore() (vectorstore.Store, error) {
	if flagDryRun {
		return vectorstore.NewMemoryStore(), nil
	}
	store, err := vectorstore.NewWeaviate(flagWeaviateURL)
	if err != nil {
		return nil, err
	}
	store.SetClass(os.Getenv("SCHEMA_NAME"))
	return store, nil
}

func runLocal(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := newStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := walker.NewLocalSource(flagBasePath, nil)
	ix := indexer.New(store, indexer.Options{
		DryRun: flagDryRun,
		Force:  flagForce,
	}, logger.Slog())

	summary, err := ix.Run(ctx, source)
	logSummary(logger, summary)
	if err != nil {
		return err
	}

	if flagWatch {
		if flagDryRun {
			logger.Warn("--watch with --dry-run only reports changes, nothing is written")
		}
		return watchAndReindex(ctx, logger, ix, flagBasePath)
	}

	if summary.Errors > 0 {
		return &exitError{errors: summary.Errors}
	}
	return nil
}

func runGitHub(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	token := flagGitHubToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	source, err := walker.NewGitHubSource(token, flagOrg, flagRepo)
	if err != nil {
		return err
	}

	store, err := newStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix := indexer.New(store, indexer.Options{
		DryRun: flagDryRun,
		Force:  flagForce,
	}, logger.Slog())

	summary, err := ix.Run(ctx, source)
	logSummary(logger, summary)
	if err != nil {
		return err
	}
	if summary.Errors > 0 {
		return &exitError{errors: summary.Errors}
	}
	return nil
}

func logSummary(logger *logging.Logger, s *indexer.Summary) {
	logger.Info("indexing summary",
		"files_seen", s.FilesSeen,
		"indexed", s.Indexed,
		"skipped_unchanged", s.SkippedUnchanged,
		"skipped_empty", s.SkippedEmpty,
		"errors", s.Errors,
		"total_chunks", s.TotalChunks,
		"elapsed", s.Elapsed.Round(time.Millisecond))
}
