// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package answer

import (
	"testing"

	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
)

func TestCitedIndices_IgnoresOutOfRangeCitations(t *testing.T) {
	indices := citedIndices("see [1] and [99]", 2)
	assert.True(t, indices[1])
	assert.False(t, indices[99])
}

func TestCitedIndices_DedupesRepeatedCitations(t *testing.T) {
	indices := citedIndices("[1] again [1] and again [1]", 3)
	assert.Len(t, indices, 1)
}

func TestValidateCitations_NoCitationsYieldsZeroGroundingScore(t *testing.T) {
	docs := []vectorstore.Document{{Source: "a.pdf"}, {Source: "b.pdf"}}
	meta := validateCitations("an answer with no citations at all", docs)
	assert.Empty(t, meta.CitedSources)
	assert.Len(t, meta.UncitedSources, 2)
	assert.Equal(t, 0.0, meta.GroundingScore)
}

func TestValidateCitations_AllSentencesCitedYieldsFullScore(t *testing.T) {
	docs := []vectorstore.Document{{Source: "a.pdf"}}
	meta := validateCitations("First fact [1]. Second fact [1].", docs)
	assert.Equal(t, 1.0, meta.GroundingScore)
}

func TestSplitSentences_SplitsOnTerminalPunctuation(t *testing.T) {
	sentences := splitSentences("One. Two! Three?")
	assert.Len(t, sentences, 3)
}
