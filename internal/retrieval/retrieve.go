// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jinterlante1206/tacticalrag/internal/embedcache"
	"github.com/jinterlante1206/tacticalrag/internal/embedding"
	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
	"github.com/jinterlante1206/tacticalrag/internal/rerank"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

// Retriever is C7. It owns no state about any particular conversation - C11
// supplies conversationContext per call - but does accumulate the coarse
// stats counters Stats() reports.
type Retriever struct {
	searcher    vectorstore.Searcher
	embedder    embedding.Embedder
	cache       *embedcache.Cache
	transformer *querytransform.Transformer
	reranker    rerank.Reranker
	config      Config

	totalQueries   uint64
	cacheHits      uint64
	cacheLookups   uint64
	latencySumNs   int64
	latencyCount   uint64
}

// NewRetriever wires a Retriever. cache and reranker may be nil, in which
// case embeddings are always computed fresh and the fused candidates are
// returned without a fine rerank pass, respectively.
func NewRetriever(searcher vectorstore.Searcher, embedder embedding.Embedder, cache *embedcache.Cache, transformer *querytransform.Transformer, rr rerank.Reranker, config Config) *Retriever {
	return &Retriever{
		searcher:    searcher,
		embedder:    embedder,
		cache:       cache,
		transformer: transformer,
		reranker:    rr,
		config:      config,
	}
}

// Retrieve runs C7 end to end: transform, embed (cache-first), search every
// variant concurrently, fuse, optionally rerank, normalize.
func (r *Retriever) Retrieve(ctx context.Context, query string, conversationContext string, filter vectorstore.Filter) (Result, error) {
	start := time.Now()
	atomic.AddUint64(&r.totalQueries, 1)
	defer func() { r.recordLatency(time.Since(start)) }()

	var timing Timing

	transformStart := time.Now()
	transformed := r.transform(ctx, query, conversationContext)
	variants, classification := transformed.Variants, transformed.Classification
	timing.Transform = time.Since(transformStart)

	prefetchK := r.config.TopK * r.config.PrefetchMultiplier
	if prefetchK <= 0 {
		prefetchK = r.config.TopK
	}

	embedStart := time.Now()
	vectors, cacheHits, err := r.embedVariants(ctx, variants)
	timing.Embed = time.Since(embedStart)
	cacheMisses := 0
	if r.cache != nil {
		cacheMisses = len(variants) - cacheHits
	}
	if err != nil {
		return Result{}, err
	}

	searchStart := time.Now()
	lists, err := r.searchVariants(ctx, variants, vectors, prefetchK, filter)
	timing.Search = time.Since(searchStart)
	if err != nil {
		return Result{}, err
	}

	fuseStart := time.Now()
	strategy := "single_query"
	var fused []vectorstore.Scored
	switch {
	case transformed.HydeOnly:
		// The sole variant is the HyDE passage, not query itself - query is
		// still what reaches reranking and answer generation below, just
		// never what gets embedded or searched.
		strategy = "hyde_single"
		if len(lists) == 1 {
			fused = lists[0]
		}
	case len(lists) > 1:
		strategy = "multi_query_rrf"
		fused = fuseRRF(lists, r.config.RRFConstant)
	case len(lists) == 1:
		fused = lists[0]
	}
	if len(fused) > prefetchK {
		fused = fused[:prefetchK]
	}
	timing.Fuse = time.Since(fuseStart)

	documents := make([]vectorstore.Document, len(fused))
	candidates := make([]rerank.Candidate, len(fused))
	for i, s := range fused {
		documents[i] = s.Document
		candidates[i] = rerank.Candidate{
			ID:          s.Document.ID,
			Content:     s.Document.Content,
			FusionScore: normalizeFusionScore(float64(s.Score), r.config.FusionMethod),
		}
	}

	var finalDocs []vectorstore.Document
	var finalScores []float32

	rerankStart := time.Now()
	if r.config.EnableRerank && r.reranker != nil && len(candidates) > 0 {
		ranked := r.reranker.Rerank(ctx, query, classification, candidates)
		byID := make(map[string]vectorstore.Document, len(documents))
		for _, d := range documents {
			byID[d.ID] = d
		}
		for _, rk := range ranked {
			finalDocs = append(finalDocs, byID[rk.ID])
			finalScores = append(finalScores, float32(rk.FinalScore))
		}
	} else {
		finalDocs = documents
		for _, s := range fused {
			finalScores = append(finalScores, normalizeScore32(s.Score, r.config.FusionMethod))
		}
	}
	timing.Rerank = time.Since(rerankStart)

	if len(finalDocs) > r.config.TopK {
		finalDocs = finalDocs[:r.config.TopK]
		finalScores = finalScores[:r.config.TopK]
	}

	timing.Total = time.Since(start)

	return Result{
		Documents:      finalDocs,
		Scores:         finalScores,
		Strategy:       strategy,
		Classification: classification,
		Variants:       variants,
		CacheHits:      cacheHits,
		CacheMisses:    cacheMisses,
		Timing:         timing,
	}, nil
}

func (r *Retriever) transform(ctx context.Context, query, conversationContext string) querytransform.Result {
	if r.transformer == nil {
		return querytransform.Result{Variants: []string{query}}
	}
	return r.transformer.Transform(ctx, query, conversationContext)
}

// embedVariants resolves one vector per variant, checking the embedding
// cache first and writing back on miss.
func (r *Retriever) embedVariants(ctx context.Context, variants []string) ([][]float32, int, error) {
	vectors := make([][]float32, len(variants))
	var toEmbed []string
	var toEmbedIdx []int
	hits := 0

	for i, v := range variants {
		if r.cache != nil {
			atomic.AddUint64(&r.cacheLookups, 1)
			if vec, ok := r.cache.Get(ctx, v); ok {
				atomic.AddUint64(&r.cacheHits, 1)
				hits++
				vectors[i] = vec
				continue
			}
		}
		toEmbed = append(toEmbed, v)
		toEmbedIdx = append(toEmbedIdx, i)
	}

	if len(toEmbed) == 0 {
		return vectors, hits, nil
	}

	computed, err := r.embedder.EmbedMany(ctx, toEmbed)
	if err != nil {
		return nil, 0, err
	}

	pairs := make(map[string][]float32, len(toEmbed))
	for j, idx := range toEmbedIdx {
		vectors[idx] = computed[j]
		pairs[toEmbed[j]] = computed[j]
	}
	if r.cache != nil {
		r.cache.BatchSet(ctx, pairs)
	}

	return vectors, hits, nil
}

// searchVariants runs one hybrid (or dense-only) search per variant
// concurrently via errgroup; results come back in variants order
// regardless of completion order.
func (r *Retriever) searchVariants(ctx context.Context, variants []string, vectors [][]float32, k int, filter vectorstore.Filter) ([][]vectorstore.Scored, error) {
	lists := make([][]vectorstore.Scored, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		i := i
		g.Go(func() error {
			scored, err := r.searchOne(gctx, vectors[i], variants[i], k, filter)
			if err != nil {
				return err
			}
			lists[i] = scored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (r *Retriever) searchOne(ctx context.Context, vector []float32, text string, k int, filter vectorstore.Filter) ([]vectorstore.Scored, error) {
	if hybrid, ok := r.searcher.(vectorstore.HybridSearcher); ok {
		return hybrid.HybridSearch(ctx, vector, text, k, filter, r.config.FusionMethod)
	}
	return r.searcher.SearchDense(ctx, vector, k, filter)
}

func (r *Retriever) recordLatency(d time.Duration) {
	atomic.AddInt64(&r.latencySumNs, int64(d))
	atomic.AddUint64(&r.latencyCount, 1)
}

// Stats reports coarse performance counters across the Retriever's
// lifetime.
func (r *Retriever) Stats() Stats {
	total := atomic.LoadUint64(&r.totalQueries)
	hits := atomic.LoadUint64(&r.cacheHits)
	lookups := atomic.LoadUint64(&r.cacheLookups)

	var hitRate float64
	if lookups > 0 {
		hitRate = float64(hits) / float64(lookups)
	}

	count := atomic.LoadUint64(&r.latencyCount)
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(atomic.LoadInt64(&r.latencySumNs) / int64(count))
	}

	return Stats{TotalQueries: total, CacheHits: hits, CacheHitRate: hitRate, AvgLatency: avg}
}

func normalizeFusionScore(score float64, method vectorstore.FusionMethod) float64 {
	// RRF scores are small positive sums of 1/(k+rank) terms with no fixed
	// upper bound in theory but a practical ceiling near 1/(k+1) per list;
	// DBSF scores are roughly standard-normal z-score sums. Both are mapped
	// through a squashing function so downstream combination with the
	// bounded [0,1] rerank score stays well-conditioned. DBSF's signed
	// result is shifted from (-1,1) onto (0,1); any other negative score (a
	// dense similarity below zero) maps to 0.
	squashed := score / (1.0 + absFloat(score))
	if method == vectorstore.FusionDBSF {
		return (squashed + 1) / 2
	}
	if squashed < 0 {
		return 0
	}
	return squashed
}

func normalizeScore32(score float32, method vectorstore.FusionMethod) float32 {
	return float32(normalizeFusionScore(float64(score), method))
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// fuseRRF performs cross-variant reciprocal rank fusion, generalizing
// vectorstore's two-list fuseRRF (dense+sparse within one variant) to an
// arbitrary number of per-variant result lists, with stable tie-breaking.
func fuseRRF(lists [][]vectorstore.Scored, k int) []vectorstore.Scored {
	if k <= 0 {
		k = 60
	}
	type acc struct {
		doc   vectorstore.Document
		score float64
	}
	byID := make(map[string]*acc)
	var order []string

	for _, list := range lists {
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

	out := make([]vectorstore.Scored, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, vectorstore.Scored{Document: a.doc, Score: float32(a.score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
