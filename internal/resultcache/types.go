// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resultcache implements C9: the three-layer result cache sitting
// in front of the answer-generation pipeline. An exact-match layer
// and a normalized-match layer are both 100% correct by construction; a
// third, semantic layer trades some correctness for reach, and earns that
// trade only by validating each candidate against the document set that
// actually produced it.
package resultcache

import "time"

// Citation mirrors one entry of an Answer's citation list - just enough
// to reconstruct a cache hit without re-running generation.
type Citation struct {
	DocumentID string
	Excerpt    string
	Relevance  float32
}

// CachedAnswer is the payload this cache stores and returns. It carries
// everything a cache hit needs to stand in for a fresh generation.
type CachedAnswer struct {
	Text           string
	Citations      []Citation
	Strategy       string
	Classification string
	GroundingScore float64
	CachedAt       time.Time
	HitCount       uint64
}

// Layer names the cache tier that served a Get, for logging and metrics.
type Layer string

const (
	LayerExact      Layer = "exact"
	LayerNormalized Layer = "normalized"
	LayerSemantic   Layer = "semantic"
	LayerMiss       Layer = "miss"
)

// Config controls TTLs and the semantic layer's correctness knobs.
type Config struct {
	// ExactTTL/NormalizedTTL are long - both layers are 100% correct, so
	// staleness is the only risk and it is bounded purely by TTL.
	ExactTTL      time.Duration
	NormalizedTTL time.Duration

	// SemanticTTL is short - a semantic hit is a guess, even a validated
	// one, and should not outlive the retrieval state it was checked
	// against by very long.
	SemanticTTL time.Duration

	// SimilarityThreshold gates which semantic candidates are even
	// considered (embedding cosine similarity). Deliberately strict: a
	// default around 0.98 cosine similarity.
	SimilarityThreshold float64

	// OverlapThreshold is the Jaccard-overlap bar a candidate's
	// retrieved_doc_ids must clear against the live query's doc_ids to be
	// accepted - only overlap of 0.80 or higher qualifies.
	OverlapThreshold float64

	// MaxSemanticCandidates bounds how many of the closest semantic
	// entries are validated per lookup.
	MaxSemanticCandidates int

	// MaxSemanticEntries bounds the in-memory semantic index itself -
	// oldest entries are evicted first once the bound is reached.
	MaxSemanticEntries int
}

// DefaultConfig returns its defaults.
func DefaultConfig() Config {
	return Config{
		ExactTTL:              1 * time.Hour,
		NormalizedTTL:         1 * time.Hour,
		SemanticTTL:           10 * time.Minute,
		SimilarityThreshold:   0.98,
		OverlapThreshold:      0.80,
		MaxSemanticCandidates: 3,
		MaxSemanticEntries:    500,
	}
}

// Stats reports the counters its stats() operation exposes.
type Stats struct {
	ExactHits         uint64
	NormalizedHits    uint64
	SemanticHits      uint64
	SemanticValidated uint64
	SemanticRejected  uint64
	Misses            uint64
	TotalHits         uint64
	TotalRequests     uint64
	HitRate           float64
	SemanticPrecision float64
}
