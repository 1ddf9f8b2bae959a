// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prefetch

import (
	"sort"
	"strings"
)

// keywordSets classify a query by which phrase set it contains. Checked
// in order of specificity; the first match wins.
var keywordSets = []struct {
	queryType QueryType
	phrases   []string
}{
	{QueryTypeClarification, []string{
		"what do you mean", "can you explain", "what is", "what are",
		"clarify", "define", "meaning of", "which",
	}},
	{QueryTypeElaboration, []string{
		"tell me more", "expand on", "more details", "elaborate",
		"in depth", "further information", "more about",
	}},
	{QueryTypeExample, []string{
		"example", "for instance", "such as", "like what",
		"can you show", "demonstrate", "case study",
	}},
	{QueryTypeComparison, []string{
		"compare", "difference between", "versus", "vs",
		"better than", "worse than", "compared to", "contrast",
	}},
	{QueryTypeProcedure, []string{
		"how do i", "how to", "steps to", "guide to",
		"tutorial", "instructions", "process for", "way to",
	}},
	{QueryTypeFollowUp, []string{
		"also", "additionally", "furthermore", "moreover",
		"what about", "how about", "and", "but",
	}},
}

// patternTemplates generate a predicted follow-up query from a query type
// and up to two context keywords.
var patternTemplates = map[QueryType][]string{
	QueryTypeClarification: {
		"What do you mean by {KEYWORD}?",
		"Can you explain {KEYWORD} in more detail?",
		"What exactly is {KEYWORD}?",
		"Could you clarify what {KEYWORD} means?",
	},
	QueryTypeElaboration: {
		"Tell me more about {KEYWORD}",
		"Can you expand on {KEYWORD}?",
		"What are more details about {KEYWORD}?",
		"I'd like to know more about {KEYWORD}",
	},
	QueryTypeExample: {
		"Can you give an example of {KEYWORD}?",
		"What's a specific example of {KEYWORD}?",
		"Show me an instance of {KEYWORD}",
		"Do you have a case study for {KEYWORD}?",
	},
	QueryTypeComparison: {
		"How does {KEYWORD} compare to {KEYWORD2}?",
		"What's the difference between {KEYWORD} and {KEYWORD2}?",
		"Is {KEYWORD} better than {KEYWORD2}?",
		"{KEYWORD} vs {KEYWORD2}",
	},
	QueryTypeProcedure: {
		"How do I {KEYWORD}?",
		"What are the steps to {KEYWORD}?",
		"Guide me through {KEYWORD}",
		"How to {KEYWORD}",
	},
}

// followUpTypes captures conversation-flow patterns: which query types
// tend to come after a given one (definition -> elaboration -> example,
// procedure -> clarification -> example, and so on).
var followUpTypes = map[QueryType][]QueryType{
	QueryTypeDefinition:    {QueryTypeElaboration, QueryTypeExample},
	QueryTypeElaboration:   {QueryTypeExample, QueryTypeClarification},
	QueryTypeExample:       {QueryTypeProcedure, QueryTypeComparison},
	QueryTypeProcedure:     {QueryTypeClarification, QueryTypeExample},
	QueryTypeComparison:    {QueryTypeClarification, QueryTypeElaboration},
	QueryTypeClarification: {QueryTypeElaboration, QueryTypeExample},
	QueryTypeFollowUp:      {QueryTypeElaboration, QueryTypeExample},
	QueryTypeNewTopic:      {QueryTypeDefinition, QueryTypeElaboration},
}

// baseConfidence is how strongly each query type predicts its follow-ups,
// before the keyword/context adjustments below are applied.
var baseConfidence = map[QueryType]float64{
	QueryTypeClarification: 0.8,
	QueryTypeElaboration:   0.75,
	QueryTypeExample:       0.7,
	QueryTypeComparison:    0.65,
	QueryTypeProcedure:     0.7,
	QueryTypeFollowUp:      0.6,
	QueryTypeDefinition:    0.65,
	QueryTypeNewTopic:      0.3,
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"you": true, "your": true, "i": true, "me": true, "my": true, "we": true,
	"our": true, "can": true, "could": true, "would": true, "should": true,
	"do": true, "does": true, "did": true, "have": true, "had": true,
	"what": true, "when": true, "where": true, "who": true, "which": true,
	"why": true, "how": true,
}

// Analyzer detects conversational patterns and predicts likely follow-up
// queries. It holds no mutable state - a single Analyzer is safe to reuse
// across every conversation a Prefetcher is tracking.
type Analyzer struct{}

// NewAnalyzer returns a ready-to-use pattern analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// ClassifyQuery determines a query's conversational intent by keyword
// match, checked from most to least specific. A query matching none of
// the keyword sets is a NewTopic.
func (a *Analyzer) ClassifyQuery(query string) QueryType {
	lower := strings.ToLower(query)
	for _, set := range keywordSets {
		for _, phrase := range set.phrases {
			if strings.Contains(lower, phrase) {
				return set.queryType
			}
		}
	}
	return QueryTypeNewTopic
}

// ExtractKeywords pulls the topK most frequent non-stopword tokens out of
// the query plus its three most recent context turns. Ties break by
// first appearance, matching a stable sort over descending frequency.
func (a *Analyzer) ExtractKeywords(query string, history []string, topK int) []string {
	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	text := query
	for _, h := range recent {
		text += " " + h
	}

	freq := make(map[string]int)
	var order []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) <= 3 || stopwords[word] || !isAlpha(word) {
			continue
		}
		if _, seen := freq[word]; !seen {
			order = append(order, word)
		}
		freq[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > topK {
		order = order[:topK]
	}
	return order
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// PredictNextQueries generates up to maxPredictions likely follow-up
// queries for currentQuery, drawing templates from its classified type
// and from the types that conversationally tend to follow it.
func (a *Analyzer) PredictNextQueries(currentQuery string, history []string, queryType QueryType, maxPredictions int) ([]string, float64) {
	keywords := a.ExtractKeywords(currentQuery, history, 5)
	if len(keywords) == 0 {
		return nil, 0.1
	}

	var predictions []string
	for _, template := range firstN(patternTemplates[queryType], maxPredictions) {
		if pred, ok := fillTemplate(template, keywords); ok {
			predictions = append(predictions, pred)
		}
	}

	for _, followType := range followUpTypes[queryType] {
		if len(predictions) >= maxPredictions {
			break
		}
		for _, template := range firstN(patternTemplates[followType], 1) {
			if pred, ok := fillTemplate(template, keywords); ok {
				predictions = append(predictions, pred)
			}
		}
	}

	if len(predictions) > maxPredictions {
		predictions = predictions[:maxPredictions]
	}

	confidence := a.calculateConfidence(queryType, len(keywords), len(history))
	return predictions, confidence
}

func fillTemplate(template string, keywords []string) (string, bool) {
	needsSecond := strings.Contains(template, "{KEYWORD2}")
	if needsSecond && len(keywords) < 2 {
		return "", false
	}
	if !strings.Contains(template, "{KEYWORD}") {
		return "", false
	}
	pred := strings.ReplaceAll(template, "{KEYWORD}", keywords[0])
	if needsSecond {
		pred = strings.ReplaceAll(pred, "{KEYWORD2}", keywords[1])
	}
	return pred, true
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// calculateConfidence scores a prediction from the query type's base
// strength plus small boosts for richer keyword extraction and longer
// conversation context, capped at 1.0.
func (a *Analyzer) calculateConfidence(queryType QueryType, numKeywords, contextLength int) float64 {
	base, ok := baseConfidence[queryType]
	if !ok {
		base = 0.5
	}
	keywordFactor := min1(float64(numKeywords)/5.0) * 0.2
	contextFactor := min1(float64(contextLength)/5.0) * 0.1

	confidence := base + keywordFactor + contextFactor
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
