// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding implements C1: text-to-vector conversion, with
// interchangeable backends behind one capability interface.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable signals a transient embedding-backend failure (network,
// timeout, backend overloaded). Callers may retry.
var ErrUnavailable = errors.New("embedding backend unavailable")

// ErrModelMismatch signals the backend's declared output dimension does not
// match the dimension the vector store was configured with. This is fatal
// at init ("EmbeddingModelMismatch (fatal at init)") - a running
// server must never silently write vectors of the wrong width.
var ErrModelMismatch = errors.New("embedding model dimension mismatch")

// Embedder is C1's capability interface. A concrete backend (llama.cpp
// server, OpenAI-compatible API) is selected once at startup by config and
// never duck-typed at the call site (Design Notes: replace dynamic
// dispatch with small capability interfaces).
type Embedder interface {
	// EmbedOne returns the embedding vector for a single non-empty string.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany returns one vector per input text, in input order. The
	// i-th output must equal EmbedOne(inputs[i]) up to floating-point
	// equivalence; backends that support native batching
	// should coalesce the call rather than loop.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed output width this backend produces.
	Dimension() int
}
