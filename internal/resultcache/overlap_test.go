// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardOverlap_IdenticalSetsAreFullyValid(t *testing.T) {
	overlap, valid := jaccardOverlap([]string{"a", "b", "c"}, []string{"a", "b", "c"}, 0.80)
	assert.Equal(t, 1.0, overlap)
	assert.True(t, valid)
}

func TestJaccardOverlap_BelowThresholdIsInvalid(t *testing.T) {
	overlap, valid := jaccardOverlap([]string{"a", "b", "c", "d"}, []string{"a", "x", "y", "z"}, 0.80)
	assert.InDelta(t, 1.0/7.0, overlap, 0.001)
	assert.False(t, valid)
}

func TestJaccardOverlap_EmptySetIsInvalid(t *testing.T) {
	_, valid := jaccardOverlap(nil, []string{"a"}, 0.80)
	assert.False(t, valid)
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.0001)
}

func TestCosineSimilarity_OrthogonalVectorsScoreZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
}

func TestCosineSimilarity_MismatchedLengthsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
}
