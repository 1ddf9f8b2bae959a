// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// citedIndices returns the set of 1-based document indices the answer text
// cites, deduplicated. Indices outside the document range are dropped -
// a hallucinated citation number is not evidence of grounding.
func citedIndices(text string, documentCount int) map[int]bool {
	cited := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > documentCount {
			continue
		}
		cited[n] = true
	}
	return cited
}

// validateCitations builds Metadata's grounding diagnostics: which sources
// were actually cited, which were retrieved but never referenced, and a
// coarse grounding score (cited sentences / total sentences).
func validateCitations(answerText string, documents []vectorstore.Document) Metadata {
	cited := citedIndices(answerText, len(documents))

	var citedSources, uncitedSources []string
	for i, doc := range documents {
		name := doc.Source
		if name == "" {
			name = "Unknown"
		}
		if cited[i+1] {
			citedSources = append(citedSources, name)
		} else {
			uncitedSources = append(uncitedSources, name)
		}
	}

	return Metadata{
		CitedSources:   citedSources,
		UncitedSources: uncitedSources,
		GroundingScore: groundingScore(answerText, cited),
	}
}

// groundingScore estimates what fraction of the answer's sentences carry a
// citation, as a cheap proxy for "is this answer actually grounded in the
// retrieved documents" without a second LLM call.
func groundingScore(answerText string, cited map[int]bool) float64 {
	if len(cited) == 0 {
		return 0
	}
	sentences := splitSentences(answerText)
	if len(sentences) == 0 {
		return 0
	}
	var withCitation int
	for _, s := range sentences {
		if citationPattern.MatchString(s) {
			withCitation++
		}
	}
	return float64(withCitation) / float64(len(sentences))
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
