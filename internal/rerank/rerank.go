// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
)

// minBatchCandidates/maxBatchCandidates bound the candidate count where a
// single batched scoring call beats spawning one goroutine per document -
// below the floor, parallel calls are already cheap; above the ceiling,
// a batch prompt stops fitting comfortably in context and per-document
// truncation starts costing more accuracy than the saved round trips.
const (
	minBatchCandidates = 2
	maxBatchCandidates = 5
)

// LLMReranker is C6's fine-pass reranker: it scores the top-R candidates
// (R chosen adaptively by classification) with an LLM judge, combines that
// score with each candidate's fusion score, and always returns every
// candidate it was given - never fewer - so a scoring failure degrades
// ranking quality without ever shrinking the result set ("a scoring
// failure must never reduce the candidate count").
type LLMReranker struct {
	generate GenerateFunc
	config   Config
	cache    *scoreCache
}

var _ Reranker = (*LLMReranker)(nil)

// NewLLMReranker wires an LLMReranker. generate may be nil, in which case
// Rerank degrades to a pass-through ordered by fusion score only.
func NewLLMReranker(generate GenerateFunc, config Config) *LLMReranker {
	return &LLMReranker{generate: generate, config: config, cache: newScoreCache()}
}

// Rerank scores up to topR(classification) candidates, leaves the
// remainder at their fusion-score-only ranking, and returns the full set
// sorted by FinalScore descending. When topR falls in [2,5] the candidates
// are scored with a single batched LLM call instead of one goroutine per
// document - at that size a batch prompt is faster than the per-document
// round trips it replaces; outside that range each candidate is scored
// independently and in parallel.
func (r *LLMReranker) Rerank(ctx context.Context, query string, classification querytransform.Classification, candidates []Candidate) []Ranked {
	if len(candidates) == 0 {
		return nil
	}

	topR := r.config.topRFor(classification)
	if topR > len(candidates) {
		topR = len(candidates)
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, FinalScore: c.FusionScore, OriginalRank: i + 1}
	}

	if r.generate == nil || topR == 0 {
		sortByFinalScore(ranked)
		return ranked
	}

	if topR >= minBatchCandidates && topR <= maxBatchCandidates {
		r.scoreBatch(ctx, query, ranked[:topR], string(classification))
	} else {
		var wg sync.WaitGroup
		for i := 0; i < topR; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				score := r.scoreWithFallback(ctx, query, ranked[idx].Content, string(classification))
				ranked[idx].LLMScore = score
				ranked[idx].FinalScore = r.combine(ranked[idx].FusionScore, score)
			}(i)
		}
		wg.Wait()
	}

	sortByFinalScore(ranked)
	return ranked
}

// scoreBatch scores every candidate in batch with a single LLM call instead
// of one call per document - a comma-separated score list comes back, one
// entry per document in order. batch aliases ranked's backing array, so
// writes here are visible through the caller's slice. A failed or
// malformed response degrades every entry in the batch to the neutral
// score rather than falling back to per-document calls: at this candidate
// count the whole point is staying at one round trip.
func (r *LLMReranker) scoreBatch(ctx context.Context, query string, batch []Ranked, classification string) {
	contents := make([]string, len(batch))
	for i, candidate := range batch {
		contents[i] = candidate.Content
	}

	response, err := r.generate(ctx, buildBatchScoringPrompt(query, contents, classification), 16*len(contents), 0)
	if err != nil {
		slog.Warn("rerank: batch LLM scoring failed, using neutral scores", "error", err)
		for i := range batch {
			batch[i].LLMScore = neutralScore
			batch[i].FinalScore = r.combine(batch[i].FusionScore, neutralScore)
		}
		return
	}

	scores := parseBatchScores(response, len(contents))
	for i := range batch {
		batch[i].LLMScore = scores[i]
		batch[i].FinalScore = r.combine(batch[i].FusionScore, scores[i])
	}
}

func (r *LLMReranker) combine(fusionScore, llmScore float64) float64 {
	if llmScore <= 0 {
		return fusionScore
	}
	alpha := float64(r.config.Alpha)
	return alpha*fusionScore + (1-alpha)*normalizeScore(llmScore)
}

// scoreWithFallback checks the cache, then calls the LLM, then falls back
// to the neutral score on any failure - a scoring failure never propagates
// as an error, matching the original's broad except-and-return-5.0.
func (r *LLMReranker) scoreWithFallback(ctx context.Context, query, document, classification string) float64 {
	if score, ok := r.cache.get(query, document); ok {
		return score
	}

	response, err := r.generate(ctx, buildScoringPrompt(query, document, classification), 8, 0)
	if err != nil {
		slog.Warn("rerank: LLM scoring failed, using neutral score", "error", err)
		return neutralScore
	}

	score := extractScore(response)
	r.cache.set(query, document, score)
	return score
}

func buildScoringPrompt(query, document, classification string) string {
	if classification == "" {
		classification = "general"
	}
	truncatedDoc := truncate(document, 1500)

	var b strings.Builder
	b.WriteString("You are an expert at evaluating the relevance of policy documents to user questions.\n\n")
	fmt.Fprintf(&b, "Query Type: %s\n", classification)
	fmt.Fprintf(&b, "User Question: %s\n\n", query)
	b.WriteString("Document Content:\n")
	b.WriteString(truncatedDoc)
	b.WriteString("\n\nOn a scale of 1-10, rate how relevant this document is to answering the user's ")
	b.WriteString("question. Consider whether it contains the specific information needed and whether ")
	b.WriteString("it is the primary source or just contextual.\n\n")
	b.WriteString("Respond with ONLY a number between 1 and 10 (decimals allowed). Do not explain.\n\nScore:")
	return b.String()
}

// buildBatchScoringPrompt asks the LLM to score every document in one
// response, returned as a comma-separated list in document order. Each
// document gets a tighter truncation than the single-document prompt
// since several now share the same context window.
func buildBatchScoringPrompt(query string, documents []string, classification string) string {
	if classification == "" {
		classification = "general"
	}

	var b strings.Builder
	b.WriteString("You are an expert at evaluating the relevance of policy documents to user questions.\n\n")
	fmt.Fprintf(&b, "Query Type: %s\n", classification)
	fmt.Fprintf(&b, "User Question: %s\n\n", query)
	fmt.Fprintf(&b, "Below are %d documents. Rate each on a scale of 1-10 for relevance.\n\n", len(documents))
	for i, doc := range documents {
		fmt.Fprintf(&b, "=== DOCUMENT %d ===\n%s\n\n", i+1, truncate(doc, 800))
	}
	b.WriteString(`Provide ONLY the scores as a comma-separated list (e.g., "8.5, 6.0, 9.2, 5.5"):`)
	b.WriteString("\n\nScores:")
	return b.String()
}

// parseBatchScores splits a comma-separated score list, clamping each value
// to [1,10] and substituting the neutral score for any entry that won't
// parse. A response with fewer entries than documents is padded with the
// neutral score rather than rejected outright - a partially-garbled batch
// reply still beats discarding every score in it.
func parseBatchScores(response string, want int) []float64 {
	scores := make([]float64, 0, want)
	for _, part := range strings.Split(strings.TrimSpace(response), ",") {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			scores = append(scores, neutralScore)
			continue
		}
		scores = append(scores, clampScore(value))
	}
	for len(scores) < want {
		scores = append(scores, neutralScore)
	}
	return scores[:want]
}

func sortByFinalScore(ranked []Ranked) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
}
