// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prefetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuery_DetectsEachIntent(t *testing.T) {
	a := NewAnalyzer()
	cases := map[string]QueryType{
		"what is a retention policy":         QueryTypeClarification,
		"tell me more about that":            QueryTypeElaboration,
		"can you give an example":            QueryTypeExample,
		"how does this compare to the old one": QueryTypeComparison,
		"how do i file an exception request":  QueryTypeProcedure,
		"also what about the audit trail":     QueryTypeFollowUp,
		"unrelated sentence here":             QueryTypeNewTopic,
	}
	for query, want := range cases {
		assert.Equal(t, want, a.ClassifyQuery(query), query)
	}
}

func TestExtractKeywords_FiltersStopwordsAndShortWords(t *testing.T) {
	a := NewAnalyzer()
	keywords := a.ExtractKeywords("what is the retention policy for logs", nil, 5)
	assert.Contains(t, keywords, "retention")
	assert.Contains(t, keywords, "policy")
	assert.NotContains(t, keywords, "what")
	assert.NotContains(t, keywords, "the")
}

func TestExtractKeywords_RanksByFrequency(t *testing.T) {
	a := NewAnalyzer()
	keywords := a.ExtractKeywords("policy policy retention", nil, 5)
	assert.Equal(t, "policy", keywords[0])
}

func TestPredictNextQueries_NoKeywordsYieldsLowConfidence(t *testing.T) {
	a := NewAnalyzer()
	predictions, confidence := a.PredictNextQueries("is it", nil, QueryTypeNewTopic, 3)
	assert.Empty(t, predictions)
	assert.Equal(t, 0.1, confidence)
}

func TestPredictNextQueries_GeneratesTemplatedFollowUps(t *testing.T) {
	a := NewAnalyzer()
	predictions, confidence := a.PredictNextQueries(
		"what is the retention policy", nil, QueryTypeClarification, 3)
	assert.NotEmpty(t, predictions)
	assert.Greater(t, confidence, 0.0)
	for _, p := range predictions {
		assert.NotContains(t, p, "{KEYWORD}")
	}
}

func TestPredictNextQueries_ComparisonNeedsTwoKeywords(t *testing.T) {
	a := NewAnalyzer()
	predictions, _ := a.PredictNextQueries(
		"compare retention and archival", nil, QueryTypeComparison, 3)
	for _, p := range predictions {
		assert.NotContains(t, p, "{KEYWORD2}")
	}
}

func TestPriorityFor_MatchesConfidenceBands(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityFor(0.7))
	assert.Equal(t, PriorityMedium, PriorityFor(0.4))
	assert.Equal(t, PriorityLow, PriorityFor(0.39))
}
