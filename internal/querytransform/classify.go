// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package querytransform

import (
	"context"
	"log/slog"
	"strings"
)

// keyword sets below drive the rule-based classification cascade, extended
// so the cascade reaches every member of the closed set.
var (
	clarificationKeywords = []string{
		"what do you mean", "can you explain", "what is", "what are",
		"clarify", "define", "meaning of", "which",
	}
	elaborationKeywords = []string{
		"tell me more", "expand on", "more details", "elaborate",
		"in depth", "further information", "more about",
	}
	exampleKeywords = []string{
		"example", "for instance", "such as", "like what",
		"can you show", "demonstrate", "case study",
	}
	comparisonKeywords = []string{
		"compare", "difference between", "versus", "vs",
		"better than", "worse than", "compared to", "contrast",
	}
	procedureKeywords = []string{
		"how do i", "how to", "steps to", "guide to",
		"tutorial", "instructions", "process for", "way to",
	}
	definitionKeywords = []string{
		"define", "definition of", "what does", "stands for", "means",
	}
	followUpIndicators = []string{
		"also", "additionally", "furthermore", "moreover",
		"what about", "how about", "and", "but",
	}
	newTopicIndicators = []string{
		"new question", "different topic", "unrelated", "switching to", "on another note",
	}
	complexIndicators = []string{
		"and also", "as well as", "in addition to", "relationship between",
	}
)

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// classifyByRules is a deterministic if/elif cascade mirroring the
// original's classify_query. Ordering matters: more specific categories are
// checked first so a query like "how do i clarify this" resolves to
// procedure rather than clarification, matching the original's precedence.
func classifyByRules(query string, hasConversationContext bool) (Classification, bool) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" {
		return "", false
	}

	switch {
	case containsAny(lower, comparisonKeywords):
		return Comparison, true
	case containsAny(lower, procedureKeywords):
		return Procedure, true
	case containsAny(lower, exampleKeywords):
		return Example, true
	case containsAny(lower, definitionKeywords):
		return Definition, true
	case containsAny(lower, elaborationKeywords):
		return Elaboration, true
	case containsAny(lower, clarificationKeywords):
		return Clarification, true
	case containsAny(lower, newTopicIndicators):
		return NewTopic, true
	case containsAny(lower, complexIndicators):
		return Complex, true
	case hasConversationContext && containsAny(lower, followUpIndicators):
		return FollowUp, true
	}

	// A bare question with no conversation context and no matched pattern
	// is treated as a fresh, standalone factual lookup.
	if !hasConversationContext {
		return Factual, true
	}

	return "", false
}

// Classify assigns a Classification to query. Rules run first and are
// returned outright when they produce a confident match; an ambiguous
// query - one the rules can't place - is optionally handed to the LLM for
// one refinement call. Any LLM failure is non-fatal and falls back to
// Complex, since an ambiguous multi-signal query is the closest rule-based
// approximation available ("errors are non-fatal").
func Classify(ctx context.Context, generate GenerateFunc, cfg Config, query string, hasConversationContext bool) Classification {
	if class, ok := classifyByRules(query, hasConversationContext); ok {
		return class
	}

	if !cfg.EnableLLMClassification || generate == nil {
		return Complex
	}

	class, err := classifyByLLM(ctx, generate, cfg, query)
	if err != nil {
		slog.Warn("query classification: LLM refinement failed, defaulting to complex", "error", err)
		return Complex
	}
	return class
}

var validClassifications = map[Classification]bool{
	Clarification: true, Elaboration: true, Example: true, Comparison: true,
	Procedure: true, Definition: true, FollowUp: true, NewTopic: true,
	Factual: true, Complex: true,
}

func classifyByLLM(ctx context.Context, generate GenerateFunc, cfg Config, query string) (Classification, error) {
	prompt := buildClassificationPrompt(query)
	out, err := generate(ctx, prompt, 16, cfg.HydeTemperature)
	if err != nil {
		return "", err
	}

	candidate := Classification(strings.ToLower(strings.TrimSpace(out)))
	if !validClassifications[candidate] {
		return Complex, nil
	}
	return candidate, nil
}

func buildClassificationPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Classify the following user query into exactly one of these categories: ")
	b.WriteString("clarification, elaboration, example, comparison, procedure, definition, ")
	b.WriteString("follow_up, new_topic, factual, complex.\n")
	b.WriteString("Respond with only the category name, nothing else.\n\n")
	b.WriteString("<query>\n")
	b.WriteString(query)
	b.WriteString("\n</query>\n")
	return b.String()
}
