// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// fawkes-indexer ingests platform documentation into the vector store.
//
// Usage:
//
//	fawkes-indexer local [--base-path DIR] [--watch]
//	fawkes-indexer github --repo owner/name
//	fawkes-indexer github --org myorg
//
// Common flags: --weaviate-url, --dry-run, --force-reindex, --log-level,
// --log-dir. Exits 0 when every document indexed cleanly and 1 otherwise.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env keeps tokens out of shell history for local runs.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
