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
	"strings"
	"testing"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		filepath string
		want     string
	}{
		{"docs/adr/001-use-weaviate.md", "adr"},
		{"docs/guides/ADR-template.md", "adr"},
		{"docs/guides/onboarding.md", "doc"},
		{"README.md", "readme"},
		{"platform/api/readme.md", "readme"},
		{"platform/api/service.go", "platform"},
		{"infra/modules/vpc/main.tf", "infrastructure"},
		{"scripts/deploy.py", "code"},
		{"scripts/run.js", "code"},
		{"config/settings.yaml", "config"},
		{"Makefile.json", "config"},
	}

	for _, tt := range tests {
		t.Run(tt.filepath, func(t *testing.T) {
			if got := Categorize(tt.filepath); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.filepath, got, tt.want)
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	t.Run("h1 in first lines", func(t *testing.T) {
		content := "some preamble\n# Deployment Guide\nbody text"
		if got := ExtractTitle(content, "docs/deploy.md"); got != "Deployment Guide" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("h1 past line twenty is ignored", func(t *testing.T) {
		content := strings.Repeat("filler\n", 20) + "# Too Late"
		if got := ExtractTitle(content, "docs/deploy-guide.md"); got != "Deploy Guide" {
			t.Errorf("got %q, want filename fallback", got)
		}
	})

	t.Run("filename fallback replaces separators", func(t *testing.T) {
		if got := ExtractTitle("no heading", "docs/my_first-doc.md"); got != "My First Doc" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("h2 does not count", func(t *testing.T) {
		if got := ExtractTitle("## Subheading only", "docs/notes.md"); got != "Notes" {
			t.Errorf("got %q", got)
		}
	})
}

func TestShouldExclude(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"docs/guide.md", false},
		{"platform/node_modules/pkg/readme.md", true},
		{"repo/.git/config", true},
		{"app/__pycache__/mod.py", true},
		{"infra/.terraform/plan.json", true},
		{"pkg/vendor/lib/lib.go", true},
		{"project/dist/bundle.js", true},
		// Substring matching: "build" anywhere in the path disqualifies.
		{"docs/building.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ShouldExclude(tt.path); got != tt.want {
				t.Errorf("ShouldExclude(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
