// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultcache

import "math"

// jaccardOverlap computes the Jaccard similarity of two document-ID sets
// and reports whether it clears threshold. Ported from cache_next_gen.py's
// DocumentOverlapValidator.calculate_overlap - this is the correctness gate
// that keeps the semantic cache layer from returning a stale answer once
// the underlying retrieval set has actually moved.
func jaccardOverlap(a, b []string, threshold float64) (overlap float64, valid bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}

	setA := make(map[string]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	setB := make(map[string]bool, len(b))
	for _, id := range b {
		setB[id] = true
	}

	intersection := 0
	for id := range setA {
		if setB[id] {
			intersection++
		}
	}
	union := len(setA)
	for id := range setB {
		if !setA[id] {
			union++
		}
	}
	if union == 0 {
		return 0, false
	}

	overlap = float64(intersection) / float64(union)
	return overlap, overlap >= threshold
}

// cosineSimilarity is the semantic layer's candidate-ranking metric.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
