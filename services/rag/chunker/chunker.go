// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chunker splits document text into embedding-sized pieces.
package chunker

import "strings"

// MaxChunkChars caps chunk length at roughly 512 tokens worth of text.
const MaxChunkChars = 512 * 4

// Split breaks content into chunks of at most max characters.
//
// Description:
//
//	Splits preferentially on paragraph boundaries (blank lines) and falls
//	back to sentence boundaries for paragraphs that are themselves too
//	long. Paragraph structure inside a chunk is preserved; leading and
//	trailing whitespace is trimmed from each emitted chunk.
//
// Inputs:
//
//	content - Document text
//	max - Maximum chunk size in characters; values <= 0 use MaxChunkChars
//
// Outputs:
//
//	[]string - Ordered, non-empty chunks. Content at or under the limit
//	comes back as a single chunk unchanged.
func Split(content string, max int) []string {
	if max <= 0 {
		max = MaxChunkChars
	}
	if len(content) <= max {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
	}

	for _, para := range strings.Split(content, "\n\n") {
		if current.Len()+len(para)+2 > max {
			flush()
			if len(para) > max {
				for _, sentence := range strings.Split(para, ". ") {
					if current.Len()+len(sentence)+2 > max {
						flush()
					}
					current.WriteString(sentence)
					current.WriteString(". ")
				}
				continue
			}
		}
		current.WriteString(para)
		current.WriteString("\n\n")
	}
	flush()

	return chunks
}
