// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rerank implements C6: a two-stage reranker combining the fusion
// score already carried by each candidate with an LLM relevance judgment,
// with an adaptive cutoff on how many candidates receive the fine pass.
package rerank

import (
	"context"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
)

// GenerateFunc adapts a C3 LLM client's generation call without this
// package importing internal/llmclient directly.
type GenerateFunc func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)

// Candidate is one retrieval result entering the rerank stage.
type Candidate struct {
	ID         string
	Content    string
	Metadata   map[string]string
	FusionScore float64
}

// Ranked is a Candidate after the fine pass, carrying both scores so a
// caller can inspect how much the LLM judgment moved a document.
type Ranked struct {
	Candidate
	LLMScore    float64 // 1.0-10.0; 0 means "not scored by the fine pass"
	FinalScore  float64 // normalized [0,1] combination used for final sort
	OriginalRank int
}

// Reranker is C6's capability interface.
type Reranker interface {
	Rerank(ctx context.Context, query string, classification querytransform.Classification, candidates []Candidate) []Ranked
}

// Config controls the fine pass.
type Config struct {
	// Alpha weights the fusion score against the normalized LLM score in
	// the final combination: final = alpha*fusion + (1-alpha)*llm.
	Alpha float32

	// DefaultTopR is used when classification doesn't match one of the
	// adaptive tiers below.
	DefaultTopR int

	// FactualTopR/ProcedureTopR/ComplexTopR set the adaptive fine-pass
	// cutoff by classification: simple factual queries rerank 3 candidates,
	// procedural queries 4, complex queries 5.
	FactualTopR   int
	ProcedureTopR int
	ComplexTopR   int
}

// DefaultConfig matches the adaptive tiers above.
func DefaultConfig() Config {
	return Config{
		Alpha:         0.6,
		DefaultTopR:   4,
		FactualTopR:   3,
		ProcedureTopR: 4,
		ComplexTopR:   5,
	}
}

// topRFor picks the adaptive fine-pass cutoff for a classification.
func (c Config) topRFor(classification querytransform.Classification) int {
	switch classification {
	case querytransform.Factual, querytransform.Clarification, querytransform.Definition:
		return c.FactualTopR
	case querytransform.Procedure, querytransform.Example:
		return c.ProcedureTopR
	case querytransform.Complex, querytransform.Comparison:
		return c.ComplexTopR
	default:
		return c.DefaultTopR
	}
}
