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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagWeaviateURL string
	flagDryRun      bool
	flagForce       bool
	flagLogLevel    string
	flagLogDir      string

	flagBasePath string
	flagWatch    bool

	flagGitHubToken string
	flagOrg         string
	flagRepo        string

	rootCmd *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "fawkes-indexer",
		Short: "Index platform documentation into the Fawkes vector store",
		Long: `fawkes-indexer scans documentation sources, chunks their content,
and writes the chunks into Weaviate for semantic retrieval.`,
		SilenceUsage: true,
	}

	localCmd := &cobra.Command{
		Use:   "local",
		Short: "Index docs/, platform/, and infra/ under a repository root",
		RunE:  runLocal,
	}
	localCmd.Flags().StringVar(&flagBasePath, "base-path", ".",
		"Base path of the repository to scan")
	localCmd.Flags().BoolVar(&flagWatch, "watch", false,
		"Stay running and re-index files as they change")

	githubCmd := &cobra.Command{
		Use:   "github",
		Short: "Index documentation files from GitHub repositories",
		RunE:  runGitHub,
	}
	githubCmd.Flags().StringVar(&flagGitHubToken, "github-token", "",
		"GitHub API token (defaults to GITHUB_TOKEN)")
	githubCmd.Flags().StringVar(&flagOrg, "org", "",
		"Index every repository of this organization")
	githubCmd.Flags().StringVar(&flagRepo, "repo", "",
		"Index a single repository, owner/name")

	for _, cmd := range []*cobra.Command{localCmd, githubCmd} {
		cmd.Flags().StringVar(&flagWeaviateURL, "weaviate-url",
			envOr("WEAVIATE_URL", "http://localhost:8080"), "Weaviate URL")
		cmd.Flags().BoolVar(&flagDryRun, "dry-run", false,
			"Show what would be indexed without writing anything")
		cmd.Flags().BoolVar(&flagForce, "force-reindex", false,
			"Re-index all documents even if unchanged")
		cmd.Flags().StringVar(&flagLogLevel, "log-level", "info",
			"Log level: debug, info, warn, error")
		cmd.Flags().StringVar(&flagLogDir, "log-dir", "",
			"Directory for JSON log files (disabled when empty)")
	}

	rootCmd.AddCommand(localCmd, githubCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// exitError marks a run that finished with per-document failures, so main
// exits 1 without cobra printing a stack of usage help.
type exitError struct {
	errors int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("indexing finished with %d error(s)", e.errors)
}
