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
)

func TestClassify_Comparison(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "compare vacation and sick leave", false)
	assert.Equal(t, Comparison, c)
}

func TestClassify_Procedure(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "how do i file an expense report", false)
	assert.Equal(t, Procedure, c)
}

func TestClassify_Example(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "can you give an example of a conflict of interest", false)
	assert.Equal(t, Example, c)
}

func TestClassify_Definition(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "what does PTO stand for", false)
	assert.Equal(t, Definition, c)
}

func TestClassify_Elaboration(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "tell me more about the approval process", false)
	assert.Equal(t, Elaboration, c)
}

func TestClassify_Clarification(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "what is a qualifying event", false)
	assert.Equal(t, Clarification, c)
}

func TestClassify_NewTopic(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "new question, unrelated to this", true)
	assert.Equal(t, NewTopic, c)
}

func TestClassify_Complex(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "explain the relationship between severance and COBRA", false)
	assert.Equal(t, Complex, c)
}

func TestClassify_FollowUpRequiresConversationContext(t *testing.T) {
	withoutContext := Classify(context.Background(), nil, DefaultConfig(), "also what about dental", false)
	assert.Equal(t, Factual, withoutContext)

	withContext := Classify(context.Background(), nil, DefaultConfig(), "also what about dental", true)
	assert.Equal(t, FollowUp, withContext)
}

func TestClassify_StandaloneQueryWithoutContextDefaultsToFactual(t *testing.T) {
	c := Classify(context.Background(), nil, DefaultConfig(), "remote work reimbursement cap", false)
	assert.Equal(t, Factual, c)
}

func TestClassify_AmbiguousWithLLMDisabledDefaultsToComplex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableLLMClassification = false
	c := Classify(context.Background(), nil, cfg, "lorem ipsum qwerty zzzz", true)
	assert.Equal(t, Complex, c)
}

func TestClassify_LLMRefinesAmbiguousQuery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableLLMClassification = true
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "procedure", nil
	}
	c := Classify(context.Background(), generate, cfg, "lorem ipsum qwerty zzzz", true)
	assert.Equal(t, Procedure, c)
}

func TestClassify_LLMFailureFallsBackToComplex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableLLMClassification = true
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "", errors.New("boom")
	}
	c := Classify(context.Background(), generate, cfg, "lorem ipsum qwerty zzzz", true)
	assert.Equal(t, Complex, c)
}

func TestClassify_LLMInvalidLabelFallsBackToComplex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableLLMClassification = true
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
		return "not-a-real-category", nil
	}
	c := Classify(context.Background(), generate, cfg, "lorem ipsum qwerty zzzz", true)
	assert.Equal(t, Complex, c)
}
