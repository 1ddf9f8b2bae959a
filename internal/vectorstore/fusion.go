// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"math"
	"sort"
)

// fuseRRF combines a dense and a sparse prefetch list with reciprocal rank
// fusion: each document's fused score is the sum of 1/(k+rank) over every
// list it appears in, rank being 1-indexed. Documents present in both lists
// accumulate both contributions, which is what makes RRF prefer consensus
// hits over a single list's top result.
func fuseRRF(dense, sparse []Scored, k int) []Scored {
	if k <= 0 {
		k = 60
	}
	type acc struct {
		doc   Document
		score float64
	}
	byID := make(map[string]*acc)
	order := make([]string, 0, len(dense)+len(sparse))

	add := func(list []Scored) {
		for rank, s := range list {
			a, ok := byID[s.Document.ID]
			if !ok {
				a = &acc{doc: s.Document}
				byID[s.Document.ID] = a
				order = append(order, s.Document.ID)
			}
			a.score += 1.0 / float64(k+rank+1)
		}
	}
	add(dense)
	add(sparse)

	// Stable tie-breaking: documents keep the relative order they were first
	// seen in (dense before sparse) when scores are equal, per its
	// "ordering is meaningful" invariant.
	out := make([]Scored, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, Scored{Document: a.doc, Score: float32(a.score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// fuseDBSF combines a dense and a sparse prefetch list with
// distribution-based score fusion: each list's raw scores are normalized to
// z-scores (using that list's own mean/stddev) before summing, so that a
// dense list with a narrow score spread doesn't get drowned out by a sparse
// list with a wide one.
func fuseDBSF(dense, sparse []Scored, _ int) []Scored {
	type acc struct {
		doc   Document
		score float64
	}
	byID := make(map[string]*acc)
	order := make([]string, 0, len(dense)+len(sparse))

	add := func(list []Scored) {
		if len(list) == 0 {
			return
		}
		var sum, sumSq float64
		for _, s := range list {
			sum += float64(s.Score)
			sumSq += float64(s.Score) * float64(s.Score)
		}
		n := float64(len(list))
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		stddev := math.Sqrt(variance)
		if stddev == 0 {
			stddev = 1
		}
		for _, s := range list {
			z := (float64(s.Score) - mean) / stddev
			a, ok := byID[s.Document.ID]
			if !ok {
				a = &acc{doc: s.Document}
				byID[s.Document.ID] = a
				order = append(order, s.Document.ID)
			}
			a.score += z
		}
	}
	add(dense)
	add(sparse)

	out := make([]Scored, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, Scored{Document: a.doc, Score: float32(a.score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
