// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder is an OpenAI-compatible embedding backend, the alternate
// C1 implementation selected by C12's embedding backend flag (mirrors C3's
// llmclient.OpenAIClient selection).
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIEmbedder reads OPENAI_API_KEY (falling back to a mounted Podman
// secret) and OPENAI_EMBEDDING_MODEL (default text-embedding-3-small), then
// probes the backend to validate expectedDimension - a mismatch is fatal
// at init.
func NewOpenAIEmbedder(ctx context.Context, expectedDimension int) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		const secretPath = "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set and no secret at %s", ErrUnavailable, secretPath)
		}
		apiKey = strings.TrimSpace(string(raw))
		slog.Info("read OpenAI API key from mounted secret", "path", secretPath)
	}

	modelName := os.Getenv("OPENAI_EMBEDDING_MODEL")
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
		slog.Warn("OPENAI_EMBEDDING_MODEL not set, defaulting", "model", modelName)
	}

	e := &OpenAIEmbedder{
		client:    openai.NewClient(apiKey),
		model:     openai.EmbeddingModel(modelName),
		dimension: expectedDimension,
	}

	vectors, err := e.embed(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("%w: probing OpenAI embedding backend: %v", ErrUnavailable, err)
	}
	if expectedDimension > 0 && len(vectors[0]) != expectedDimension {
		return nil, fmt.Errorf("%w: backend produces %d-dim vectors, vector store expects %d",
			ErrModelMismatch, len(vectors[0]), expectedDimension)
	}
	if expectedDimension == 0 {
		e.dimension = len(vectors[0])
	}

	return e, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrUnavailable, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// EmbedOne implements Embedder.
func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embed one: text is empty")
	}
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany implements Embedder, sending the whole batch in one OpenAI
// request - the API natively accepts a list of inputs.
func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts)
}

// Dimension implements Embedder.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

var _ Embedder = (*OpenAIEmbedder)(nil)
