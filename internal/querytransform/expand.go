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
	"time"
)

// Transformer is C5: it turns one raw query into an ordered sequence of
// retrieval variants, plus an optional classification.
type Transformer struct {
	generate GenerateFunc
	config   Config
}

// NewTransformer wires a Transformer. generate may be nil, in which case
// HyDE and LLM classification refinement are both skipped and Transform
// falls back to rule-based behavior only.
func NewTransformer(generate GenerateFunc, config Config) *Transformer {
	return &Transformer{generate: generate, config: config}
}

// Transform runs C5 end to end. It never returns an error: every generative
// failure is absorbed internally and degrades toward fewer variants, per
// its "errors are non-fatal; on failure returns (original_only, None)".
// conversationContext is an optional augmented-query string from C11;
// only whether it is non-empty is used, as the conversation-context signal
// for classification. It does not feed HyDE and is never surfaced as a
// variant itself.
//
// Three retrieval strategies fall out of the variant count and shape:
// a single variant equal to query is "single_query"; more than one variant
// is "multi_query_rrf"; and when HyDE succeeds with HydeIncludeOriginal disabled,
// Result.HydeOnly is set and Variants holds only the hypothetical passage -
// "hyde_single". In every case the caller's own copy of query, not
// anything in Variants, is what should reach reranking and answer
// generation.
func (t *Transformer) Transform(ctx context.Context, query string, conversationContext string) Result {
	query = strings.TrimSpace(query)

	if query == "" {
		return Result{Variants: []string{query}}
	}

	var classification Classification
	if t.config.EnableClassification {
		classification = Classify(ctx, t.generate, t.config, query, conversationContext != "")
	}

	var hyde string
	if t.config.EnableHyDE && t.generate != nil {
		passage, err := t.generateHyDE(ctx, query)
		if err != nil {
			slog.Warn("query expansion: HyDE generation failed, continuing without it", "error", err)
		} else {
			hyde = passage
		}
	}

	if hyde != "" && !t.config.HydeIncludeOriginal {
		return Result{Variants: []string{hyde}, Classification: classification, HydeOnly: true}
	}

	variants := []string{query}
	if hyde != "" {
		variants = append(variants, hyde)
	}

	if t.config.EnableMultiQueryRewrite {
		variants = append(variants, ruleBasedRewrites(query)...)
	}

	variants = dedupePreserveOrder(variants)

	max := t.config.MaxVariants
	if max <= 0 {
		max = 4
	}
	if len(variants) > max {
		variants = variants[:max]
	}

	return Result{Variants: variants, Classification: classification}
}

func (t *Transformer) generateHyDE(ctx context.Context, query string) (string, error) {
	timeout := time.Duration(t.config.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := t.config.HydeMaxTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}

	out, err := t.generate(callCtx, buildHydePrompt(query), maxTokens, t.config.HydeTemperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func buildHydePrompt(query string) string {
	var b strings.Builder
	b.WriteString("Write a short passage that would answer the question below, as if it were ")
	b.WriteString("an excerpt from a policy document. Do not mention that this is hypothetical. ")
	b.WriteString("Keep it to two or three sentences.\n\n")
	b.WriteString("<question>\n")
	b.WriteString(query)
	b.WriteString("\n</question>\n")
	return b.String()
}

// questionWordRewrites substitutes one question-word framing for another
// so the rewritten variant surfaces documents phrased differently from
// the original query.
var questionWordRewrites = []struct {
	from, to string
}{
	{"how often", "what frequency"},
	{"how many", "what number"},
	{"what are", "list the"},
	{"when", "what time"},
}

// ruleBasedRewrites is the deterministic expansion fallback: append a
// "policy" framing if not already present, apply one question-word
// rephrasing, and append a "requirements" framing when the query looks
// procedural or regulatory.
func ruleBasedRewrites(query string) []string {
	lower := strings.ToLower(query)
	var rewrites []string

	if !strings.Contains(lower, "policy") && !strings.Contains(lower, "regulation") {
		rewrites = append(rewrites, query+" policy")
	}

	for _, r := range questionWordRewrites {
		if strings.Contains(lower, r.from) {
			rewrites = append(rewrites, strings.Replace(lower, r.from, r.to, 1))
			break
		}
	}

	if containsAny(lower, []string{"how", "what", "requirements", "must"}) {
		rewrites = append(rewrites, query+" requirements")
	}

	return rewrites
}

func dedupePreserveOrder(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
