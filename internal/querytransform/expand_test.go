// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package querytransform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform_EmptyQueryReturnsOriginalOnly(t *testing.T) {
	tr := NewTransformer(nil, DefaultConfig())
	res := tr.Transform(context.Background(), "  ", "")
	assert.Equal(t, []string{""}, res.Variants)
}

func TestTransform_NoGenerateFuncStillAppliesRuleRewrites(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTransformer(nil, cfg)
	res := tr.Transform(context.Background(), "how do i request leave", "")
	require.NotEmpty(t, res.Variants)
	assert.Equal(t, "how do i request leave", res.Variants[0])
	assert.Greater(t, len(res.Variants), 1)
}

func TestTransform_HyDEAppendsGeneratedPassage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMultiQueryRewrite = false
	cfg.MaxVariants = 10
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "Employees may request leave by submitting a form to HR.", nil
	}
	tr := NewTransformer(generate, cfg)
	res := tr.Transform(context.Background(), "how do i request leave", "")

	assert.Contains(t, res.Variants, "Employees may request leave by submitting a form to HR.")
}

func TestTransform_HydeIncludeOriginalFalseProducesHydeSingle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMultiQueryRewrite = false
	cfg.HydeIncludeOriginal = false
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "Employees may request leave by submitting a form to HR.", nil
	}
	tr := NewTransformer(generate, cfg)
	res := tr.Transform(context.Background(), "how do i request leave", "")

	assert.True(t, res.HydeOnly)
	assert.Equal(t, []string{"Employees may request leave by submitting a form to HR."}, res.Variants)
}

func TestTransform_HydeIncludeOriginalFalseFallsBackToOriginalOnHyDEFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMultiQueryRewrite = false
	cfg.HydeIncludeOriginal = false
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "", errors.New("llm unavailable")
	}
	tr := NewTransformer(generate, cfg)
	res := tr.Transform(context.Background(), "remote work policy", "")

	assert.False(t, res.HydeOnly)
	assert.Equal(t, []string{"remote work policy"}, res.Variants)
}

func TestTransform_HyDEFailureIsNonFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMultiQueryRewrite = false
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "", errors.New("llm unavailable")
	}
	tr := NewTransformer(generate, cfg)
	res := tr.Transform(context.Background(), "remote work policy", "")

	assert.Equal(t, []string{"remote work policy"}, res.Variants)
}

func TestTransform_DisablingEverythingReturnsOriginalOnly(t *testing.T) {
	cfg := Config{}
	tr := NewTransformer(nil, cfg)
	res := tr.Transform(context.Background(), "what is the dress code", "")
	assert.Equal(t, []string{"what is the dress code"}, res.Variants)
	assert.Empty(t, res.Classification)
}

func TestTransform_MaxVariantsCapsOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxVariants = 2
	cfg.EnableHyDE = false
	tr := NewTransformer(nil, cfg)
	res := tr.Transform(context.Background(), "how many sick days do i get", "")
	assert.LessOrEqual(t, len(res.Variants), 2)
}

func TestTransform_ClassificationIsPopulatedWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableHyDE = false
	cfg.EnableMultiQueryRewrite = false
	tr := NewTransformer(nil, cfg)
	res := tr.Transform(context.Background(), "compare PTO and sick leave", "")
	assert.Equal(t, Comparison, res.Classification)
}

func TestRuleBasedRewrites_AppendsPolicyFramingWhenAbsent(t *testing.T) {
	rewrites := ruleBasedRewrites("vacation accrual")
	assert.Contains(t, rewrites, "vacation accrual policy")
}

func TestRuleBasedRewrites_SkipsPolicyFramingWhenAlreadyPresent(t *testing.T) {
	rewrites := ruleBasedRewrites("vacation accrual policy")
	assert.NotContains(t, rewrites, "vacation accrual policy policy")
}

func TestRuleBasedRewrites_AppliesQuestionWordRephrasing(t *testing.T) {
	rewrites := ruleBasedRewrites("how many vacation days are allowed")
	found := false
	for _, r := range rewrites {
		if r == "what number vacation days are allowed" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRuleBasedRewrites_AppendsRequirementsFraming(t *testing.T) {
	rewrites := ruleBasedRewrites("what are the eligibility requirements")
	assert.Contains(t, rewrites, "what are the eligibility requirements requirements")
}

func TestDedupePreserveOrder_RemovesCaseInsensitiveDuplicates(t *testing.T) {
	out := dedupePreserveOrder([]string{"Hello", "hello", "World", "", "world"})
	assert.Equal(t, []string{"Hello", "World"}, out)
}
