// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querytransform implements C5: turning one raw query into a small
// ordered sequence of retrieval variants, plus an optional classification
// consumed downstream by C6 and C7.
package querytransform

import (
	"context"
	"os"
	"strconv"
)

// Classification is a tag from the closed set produced by C5 and consumed
// by C6 (adaptive top-R) and C7 (strategy selection).
type Classification string

const (
	Clarification Classification = "clarification"
	Elaboration   Classification = "elaboration"
	Example       Classification = "example"
	Comparison    Classification = "comparison"
	Procedure     Classification = "procedure"
	Definition    Classification = "definition"
	FollowUp      Classification = "follow_up"
	NewTopic      Classification = "new_topic"
	Factual       Classification = "factual"
	Complex       Classification = "complex"
)

// GenerateFunc adapts a C3 LLM client's generation call for HyDE expansion
// and LLM-assisted classification, without this package importing
// internal/llmclient directly. Unlike internal/conversation's GenerateFunc,
// this one carries an explicit temperature: generative expansions run at a
// low but non-zero temperature (around 0.3), which a fixed-temperature
// client call can't express.
type GenerateFunc func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)

// Result is C5's output: a sequence of query variants plus an optional
// classification. Variants[0] is the original, unmodified query, except
// when HydeOnly is set: then Variants holds exactly one entry, the HyDE
// passage, and the original query never appears in it at all - the caller
// is expected to still have its own copy of the original query for
// anything downstream of retrieval (reranking, answer generation).
type Result struct {
	Variants       []string
	Classification Classification // zero value means "none assigned"

	// HydeOnly marks a hyde_single transform: HyDE succeeded and
	// Config.HydeIncludeOriginal is false, so the hypothetical passage
	// replaces the original query as the sole retrieval variant instead of
	// joining it.
	HydeOnly bool
}

// Config controls which C5 strategies run and their budgets.
type Config struct {
	// EnableHyDE turns on hypothetical-document expansion.
	EnableHyDE bool

	// EnableMultiQueryRewrite turns on rule-based rewrites (policy/
	// requirements framing, question-word rephrasing).
	EnableMultiQueryRewrite bool

	// EnableClassification turns on classification entirely. When false,
	// Transform still runs expansion but Result.Classification is always
	// empty.
	EnableClassification bool

	// EnableLLMClassification lets an ambiguous rule-based classification
	// be refined by one LLM call. Rules always run first and are used
	// outright when unambiguous ("Deterministic rules run first;
	// LLM refines only ambiguous cases").
	EnableLLMClassification bool

	// MaxVariants bounds the returned variant sequence (default 3-4).
	MaxVariants int

	// HydeMaxTokens bounds the hypothetical passage's length.
	HydeMaxTokens int

	// HydeIncludeOriginal keeps the original query alongside the HyDE
	// passage as a separate retrieval variant. When false, a successful
	// HyDE generation replaces the original query outright - retrieval
	// runs against the hypothetical passage only (hyde_single) - rather
	// than adding it as one more variant among several.
	HydeIncludeOriginal bool

	// HydeTemperature is the generation temperature for HyDE and rule
	// refinement calls ("≈0.3").
	HydeTemperature float32

	// TimeoutMs bounds each generative call.
	TimeoutMs int
}

// DefaultConfig reads overrides from the environment, matching the
// teacher's env-var-driven defaults convention.
func DefaultConfig() Config {
	return Config{
		EnableHyDE:               getEnvBool("QUERY_EXPANSION_ENABLE_HYDE", true),
		EnableMultiQueryRewrite:  getEnvBool("QUERY_EXPANSION_ENABLE_REWRITE", true),
		EnableClassification:     getEnvBool("QUERY_CLASSIFICATION_ENABLED", true),
		EnableLLMClassification:  getEnvBool("QUERY_CLASSIFICATION_ENABLE_LLM", true),
		MaxVariants:              getEnvInt("QUERY_EXPANSION_MAX_VARIANTS", 4),
		HydeMaxTokens:            getEnvInt("QUERY_EXPANSION_HYDE_MAX_TOKENS", 150),
		HydeIncludeOriginal:      getEnvBool("QUERY_EXPANSION_HYDE_INCLUDE_ORIGINAL", true),
		HydeTemperature:          float32(getEnvFloat("QUERY_EXPANSION_TEMPERATURE", 0.3)),
		TimeoutMs:                getEnvInt("QUERY_EXPANSION_TIMEOUT_MS", 1500),
	}
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
