// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultcache

import (
	"context"
	"testing"

	"github.com/jinterlante1206/tacticalrag/internal/embedcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := embedcache.OpenDB(embedcache.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := NewCache(db, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGet_MissesOnEmptyCache(t *testing.T) {
	c := newTestCache(t)
	_, layer, ok := c.Get(context.Background(), "what is the leave policy", nil, nil)
	assert.False(t, ok)
	assert.Equal(t, LayerMiss, layer)
}

func TestGet_ExactMatchHitsL1(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Put(ctx, "what is the leave policy", CachedAnswer{Text: "employees accrue leave monthly"}, nil, nil)
	c.l1.Wait()

	answer, layer, ok := c.Get(ctx, "what is the leave policy", nil, nil)
	require.True(t, ok)
	assert.Equal(t, LayerExact, layer)
	assert.Equal(t, "employees accrue leave monthly", answer.Text)
}

func TestGet_NormalizedMatchHitsL2WhenExactMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Put(ctx, "What is the Leave Policy?", CachedAnswer{Text: "employees accrue leave monthly"}, nil, nil)
	c.l1.Wait()

	answer, layer, ok := c.Get(ctx, "what is the leave policy", nil, nil)
	require.True(t, ok)
	assert.Equal(t, LayerNormalized, layer)
	assert.Equal(t, "employees accrue leave monthly", answer.Text)
}

func TestGet_SemanticHitRequiresBothSimilarityAndOverlap(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	embedding := []float32{1, 0, 0, 0}
	docIDs := []string{"doc-1", "doc-2", "doc-3", "doc-4"}

	c.Put(ctx, "tell me about pto accrual", CachedAnswer{Text: "pto accrues monthly"}, embedding, docIDs)

	nearlyIdentical := []float32{0.999, 0.001, 0, 0}
	overlappingDocs := []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"}

	answer, layer, ok := c.Get(ctx, "tell me about pto build-up", nearlyIdentical, overlappingDocs)
	require.True(t, ok)
	assert.Equal(t, LayerSemantic, layer)
	assert.Equal(t, "pto accrues monthly", answer.Text)
}

func TestGet_SemanticCandidateRejectedOnLowOverlap(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	embedding := []float32{1, 0, 0, 0}
	docIDs := []string{"doc-1", "doc-2", "doc-3", "doc-4"}

	c.Put(ctx, "tell me about pto accrual", CachedAnswer{Text: "pto accrues monthly"}, embedding, docIDs)

	nearlyIdentical := []float32{0.999, 0.001, 0, 0}
	disjointDocs := []string{"doc-9", "doc-10"}

	_, layer, ok := c.Get(ctx, "tell me about pto build-up", nearlyIdentical, disjointDocs)
	assert.False(t, ok)
	assert.Equal(t, LayerMiss, layer)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.SemanticRejected)
}

func TestGet_SemanticCandidateRejectedBelowSimilarityThreshold(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	embedding := []float32{1, 0, 0, 0}
	docIDs := []string{"doc-1", "doc-2"}

	c.Put(ctx, "tell me about pto accrual", CachedAnswer{Text: "pto accrues monthly"}, embedding, docIDs)

	dissimilar := []float32{0, 1, 0, 0}
	_, _, ok := c.Get(ctx, "what is the dress code", dissimilar, docIDs)
	assert.False(t, ok)
}

func TestInvalidate_RemovesExactAndNormalizedEntries(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Put(ctx, "what is the leave policy", CachedAnswer{Text: "employees accrue leave monthly"}, nil, nil)
	c.l1.Wait()

	c.Invalidate(ctx, "what is the leave policy")

	_, _, ok := c.Get(ctx, "what is the leave policy", nil, nil)
	assert.False(t, ok)
}

func TestClearAll_ResetsStatsAndAllLayers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Put(ctx, "q1", CachedAnswer{Text: "a1"}, nil, nil)
	c.l1.Wait()
	_, _, _ = c.Get(ctx, "q1", nil, nil)

	c.ClearAll()

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.TotalRequests)
	_, _, ok := c.Get(ctx, "q1", nil, nil)
	assert.False(t, ok)
}

func TestStats_ReflectsHitRateAcrossLayers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Put(ctx, "q1", CachedAnswer{Text: "a1"}, nil, nil)
	c.l1.Wait()

	_, _, _ = c.Get(ctx, "q1", nil, nil) // exact hit
	_, _, _ = c.Get(ctx, "q2", nil, nil) // miss

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.ExactHits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
