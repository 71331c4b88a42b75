// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "testing"

func TestGetDocumentSchema(t *testing.T) {
	t.Run("class name defaults and overrides", func(t *testing.T) {
		if got := GetDocumentSchema("").Class; got != DocumentClassName {
			t.Errorf("default class %q, want %q", got, DocumentClassName)
		}
		if got := GetDocumentSchema("CustomDocs").Class; got != "CustomDocs" {
			t.Errorf("class %q, want CustomDocs", got)
		}
	})

	t.Run("property types match the persisted schema", func(t *testing.T) {
		want := map[string]string{
			"title":      "text",
			"content":    "text",
			"filepath":   "text",
			"category":   "text",
			"fileHash":   "text",
			"chunkIndex": "int",
			"indexed_at": "date",
		}

		schema := GetDocumentSchema("")
		if len(schema.Properties) != len(want) {
			t.Fatalf("%d properties, want %d", len(schema.Properties), len(want))
		}
		for _, prop := range schema.Properties {
			wantType, ok := want[prop.Name]
			if !ok {
				t.Errorf("unexpected property %q", prop.Name)
				continue
			}
			if len(prop.DataType) != 1 || prop.DataType[0] != wantType {
				t.Errorf("%s dataType = %v, want [%s]", prop.Name, prop.DataType, wantType)
			}
		}
	})

	t.Run("only content feeds the vectorizer", func(t *testing.T) {
		schema := GetDocumentSchema("")
		if schema.Vectorizer != "text2vec-transformers" {
			t.Fatalf("vectorizer %q", schema.Vectorizer)
		}
		for _, prop := range schema.Properties {
			skipped := false
			if mc, ok := prop.ModuleConfig.(map[string]interface{}); ok {
				if t2v, ok := mc["text2vec-transformers"].(map[string]interface{}); ok {
					skipped, _ = t2v["skip"].(bool)
				}
			}
			switch prop.Name {
			case "title", "content":
				if skipped {
					t.Errorf("%s should be vectorized", prop.Name)
				}
			default:
				if !skipped {
					t.Errorf("%s should skip vectorization", prop.Name)
				}
			}
		}
	})
}
