// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements C7: the adaptive retriever that ties query
// transformation (C5), embedding + caching (C1/C4), hybrid search (C2), and
// reranking (C6) into one Retrieve call.
package retrieval

import (
	"time"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
)

// Timing breaks down where Retrieve spent its time: per-stage timing
// metadata for transform, embed, search, fuse, and rerank.
type Timing struct {
	Transform time.Duration
	Embed     time.Duration
	Search    time.Duration
	Fuse      time.Duration
	Rerank    time.Duration
	Total     time.Duration
}

// Result is C7's output: a normalized, ordered document list plus enough
// metadata for C8/C9/observability to act on without re-deriving it.
type Result struct {
	Documents      []vectorstore.Document
	Scores         []float32 // normalized to [0,1], same order as Documents
	Strategy       string    // "single_query", "multi_query_rrf" or "hyde_single"
	Classification querytransform.Classification
	Variants       []string
	CacheHits      int // number of variant embeddings served from C4
	CacheMisses    int
	Timing         Timing
}

// Config controls C7's behavior.
type Config struct {
	// TopK is the number of documents to return after fusion and rerank.
	TopK int

	// PrefetchMultiplier sizes each variant's raw search request relative
	// to TopK, so fusion has enough candidates to draw consensus from.
	PrefetchMultiplier int

	// FusionMethod selects hybrid_search's own dense/sparse fusion. The
	// cross-variant fusion this package performs is always RRF,
	// independent of this setting ("RRF fusion via errgroup").
	FusionMethod vectorstore.FusionMethod

	// RRFConstant is the k in RRF's 1/(k+rank) term.
	RRFConstant int

	// EnableRerank runs candidates through C6 before returning.
	EnableRerank bool
}

// DefaultConfig returns top_k=10, RRF k=60.
func DefaultConfig() Config {
	return Config{
		TopK:               10,
		PrefetchMultiplier: 3,
		FusionMethod:       vectorstore.FusionRRF,
		RRFConstant:        60,
		EnableRerank:       true,
	}
}

// Stats reports coarse counters exposed to monitoring, not a replacement
// for per-request Timing.
type Stats struct {
	TotalQueries  uint64
	CacheHits     uint64
	CacheHitRate  float64
	AvgLatency    time.Duration
}
