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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LlamaCppEmbedder talks to a local llama.cpp server started with an
// embedding-capable model (`--embedding`). This is the default backend,
// matching C3's default llama.cpp LLM backend.
type LlamaCppEmbedder struct {
	httpClient *http.Client
	baseURL    string
	dimension  int
}

type llamaCppEmbedRequest struct {
	Content []string `json:"content"`
}

// llamaCppEmbedResult is one element of llama.cpp's /embedding response.
// Embedding is nested one level because llama.cpp returns pooled
// embeddings per sequence as [][]float32; single-sequence requests use
// index 0.
type llamaCppEmbedResult struct {
	Index     int         `json:"index"`
	Embedding [][]float32 `json:"embedding"`
}

// NewLlamaCppEmbedder connects to baseURL and validates its declared
// dimension against expectedDimension - a mismatch is fatal at init.
func NewLlamaCppEmbedder(ctx context.Context, baseURL string, expectedDimension int) (*LlamaCppEmbedder, error) {
	e := &LlamaCppEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		dimension:  expectedDimension,
	}

	vectors, err := e.embed(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("%w: probing llama.cpp embedding backend: %v", ErrUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: probe returned %d vectors, want 1", ErrUnavailable, len(vectors))
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

func (e *LlamaCppEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(llamaCppEmbedRequest{Content: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embedding", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: embedding backend status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var results []llamaCppEmbedResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(vectors) || len(r.Embedding) == 0 {
			continue
		}
		vectors[r.Index] = r.Embedding[0]
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrUnavailable, i)
		}
	}
	return vectors, nil
}

// EmbedOne implements Embedder.
func (e *LlamaCppEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embed one: text is empty")
	}
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany implements Embedder, coalescing the whole batch into one
// request to llama.cpp's parallel-slots embedding endpoint.
func (e *LlamaCppEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts)
}

// Dimension implements Embedder.
func (e *LlamaCppEmbedder) Dimension() int {
	return e.dimension
}

var _ Embedder = (*LlamaCppEmbedder)(nil)
