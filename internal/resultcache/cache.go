// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resultcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/jinterlante1206/tacticalrag/internal/embedcache"
)

const (
	l2KeyPrefix = "result:normalized:"
	l1CostUnit  = 1
)

// semanticEntry is one row of the in-memory L3 index: a cached answer plus
// the evidence needed to validate a future near-match against it.
type semanticEntry struct {
	query     string
	embedding []float32
	docIDs    []string
	answer    CachedAnswer
	storedAt  time.Time
}

// Cache is C9: the three-layer result cache. L1 (exact) is ristretto, an
// in-process admission-controlled cache chosen for its O(1) TinyLFU
// eviction - ideal for a layer whose whole job is "fast repeat lookups,
// evict the cold tail". L2 (normalized) rides on the same badger-backed
// store C4 uses, so a process restart doesn't cost every in-flight
// conversation its cache warmth. L3 (semantic) is a small bounded
// in-memory slice - candidate scans are bounded tightly enough that a
// full index is unnecessary.
type Cache struct {
	l1  *ristretto.Cache[string, CachedAnswer]
	l2  *embedcache.DB
	cfg Config

	mu        sync.RWMutex
	semantic  []semanticEntry
	maxEntries int

	exactHits, normalizedHits                uint64
	semanticHits, semanticValidated          uint64
	semanticRejected, misses                 uint64
}

// NewCache wires a Cache. l2 may be nil, in which case the normalized
// layer is skipped (useful for tests or a lightweight deployment that
// only wants L1/L3).
func NewCache(l2 *embedcache.DB, cfg Config) (*Cache, error) {
	l1, err := ristretto.NewCache(&ristretto.Config[string, CachedAnswer]{
		NumCounters: 1e5,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	maxEntries := cfg.MaxSemanticEntries
	if maxEntries <= 0 {
		maxEntries = DefaultConfig().MaxSemanticEntries
	}

	return &Cache{
		l1:         l1,
		l2:         l2,
		cfg:        cfg,
		maxEntries: maxEntries,
	}, nil
}

// Close releases the L1 cache's background goroutines. The L2 badger
// handle is owned by the caller (likely shared with C4) and is not
// closed here.
func (c *Cache) Close() {
	c.l1.Close()
}

// Get performs the three-stage lookup: exact, normalized, then semantic.
// currentDocIDs is the
// set of document IDs the live retrieval pipeline produced for query (or
// nil, if retrieval hasn't run yet) - it is only consulted by the L3
// validation step.
func (c *Cache) Get(ctx context.Context, query string, currentEmbedding []float32, currentDocIDs []string) (CachedAnswer, Layer, bool) {
	if answer, ok := c.getExact(query); ok {
		atomic.AddUint64(&c.exactHits, 1)
		return answer, LayerExact, true
	}

	normalized := normalizeQuery(query)
	if answer, ok := c.getNormalized(ctx, normalized); ok {
		atomic.AddUint64(&c.normalizedHits, 1)
		return answer, LayerNormalized, true
	}

	if len(currentEmbedding) > 0 && len(currentDocIDs) > 0 {
		if answer, ok := c.getSemantic(currentEmbedding, currentDocIDs); ok {
			atomic.AddUint64(&c.semanticHits, 1)
			atomic.AddUint64(&c.semanticValidated, 1)
			return answer, LayerSemantic, true
		}
	}

	atomic.AddUint64(&c.misses, 1)
	return CachedAnswer{}, LayerMiss, false
}

func (c *Cache) getExact(query string) (CachedAnswer, bool) {
	answer, ok := c.l1.Get(hashQuery(query))
	if !ok {
		return CachedAnswer{}, false
	}
	answer.HitCount++
	c.l1.SetWithTTL(hashQuery(query), answer, l1CostUnit, c.ttl(c.cfg.ExactTTL, DefaultConfig().ExactTTL))
	return answer, true
}

func (c *Cache) getNormalized(ctx context.Context, normalized string) (CachedAnswer, bool) {
	if c.l2 == nil {
		return CachedAnswer{}, false
	}

	key := []byte(l2KeyPrefix + hashQuery(normalized))
	var raw []byte
	err := c.l2.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return CachedAnswer{}, false
	}

	var answer CachedAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		slog.Warn("result cache: dropping corrupt normalized entry", "error", err)
		return CachedAnswer{}, false
	}
	return answer, true
}

// getSemantic ranks the in-memory semantic index by cosine similarity to
// embedding, then validates the closest candidates by Jaccard overlap of
// doc IDs - a candidate only counts as a hit once it clears both bars.
func (c *Cache) getSemantic(embedding []float32, docIDs []string) (CachedAnswer, bool) {
	c.mu.RLock()
	candidates := make([]semanticEntry, len(c.semantic))
	copy(candidates, c.semantic)
	c.mu.RUnlock()

	type scored struct {
		entry      semanticEntry
		similarity float64
	}
	var ranked []scored
	ttl := c.ttl(c.cfg.SemanticTTL, DefaultConfig().SemanticTTL)
	now := timeNow()
	for _, entry := range candidates {
		if now.Sub(entry.storedAt) > ttl {
			continue
		}
		sim := cosineSimilarity(embedding, entry.embedding)
		if sim >= c.cfg.SimilarityThreshold {
			ranked = append(ranked, scored{entry: entry, similarity: sim})
		}
	}
	sortBySimilarityDesc(ranked)

	max := c.cfg.MaxSemanticCandidates
	if max <= 0 {
		max = DefaultConfig().MaxSemanticCandidates
	}
	if len(ranked) > max {
		ranked = ranked[:max]
	}

	attempted := false
	for _, r := range ranked {
		attempted = true
		if _, valid := jaccardOverlap(docIDs, r.entry.docIDs, c.cfg.OverlapThreshold); valid {
			return r.entry.answer, true
		}
	}
	if attempted {
		atomic.AddUint64(&c.semanticRejected, 1)
	}
	return CachedAnswer{}, false
}

func sortBySimilarityDesc(items []struct {
	entry      semanticEntry
	similarity float64
}) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].similarity > items[j-1].similarity; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// Put populates all applicable layers after a successful generation.
// embedding and docIDs are optional - the semantic layer is skipped
// without both.
func (c *Cache) Put(ctx context.Context, query string, answer CachedAnswer, embedding []float32, docIDs []string) {
	if answer.CachedAt.IsZero() {
		answer.CachedAt = timeNow()
	}

	c.l1.SetWithTTL(hashQuery(query), answer, l1CostUnit, c.ttl(c.cfg.ExactTTL, DefaultConfig().ExactTTL))
	c.l1.Wait()

	normalized := normalizeQuery(query)
	if normalized != "" {
		c.putNormalized(ctx, normalized, answer)
	}

	if len(embedding) > 0 && len(docIDs) > 0 {
		c.putSemantic(query, embedding, docIDs, answer)
	}
}

func (c *Cache) putNormalized(ctx context.Context, normalized string, answer CachedAnswer) {
	if c.l2 == nil {
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		slog.Warn("result cache: failed to marshal normalized entry", "error", err)
		return
	}
	key := []byte(l2KeyPrefix + hashQuery(normalized))
	entry := badger.NewEntry(key, raw).WithTTL(c.ttl(c.cfg.NormalizedTTL, DefaultConfig().NormalizedTTL))
	err = c.l2.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("result cache: best-effort normalized write failed", "error", err)
	}
}

func (c *Cache) putSemantic(query string, embedding []float32, docIDs []string, answer CachedAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.semantic = append(c.semantic, semanticEntry{
		query:     query,
		embedding: embedding,
		docIDs:    docIDs,
		answer:    answer,
		storedAt:  timeNow(),
	})
	if len(c.semantic) > c.maxEntries {
		c.semantic = c.semantic[len(c.semantic)-c.maxEntries:]
	}
}

// Invalidate drops query from every layer it might occupy.
func (c *Cache) Invalidate(ctx context.Context, query string) {
	c.l1.Del(hashQuery(query))

	if c.l2 != nil {
		normalized := normalizeQuery(query)
		key := []byte(l2KeyPrefix + hashQuery(normalized))
		_ = c.l2.WithTxn(ctx, func(txn *badger.Txn) error {
			err := txn.Delete(key)
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.semantic[:0]
	for _, entry := range c.semantic {
		if entry.query != query {
			kept = append(kept, entry)
		}
	}
	c.semantic = kept
}

// ClearAll destroys every layer. Clearing is destructive and global -
// there is no partial-clear operation.
func (c *Cache) ClearAll() {
	c.l1.Clear()

	if c.l2 != nil {
		err := c.l2.WithTxn(context.Background(), func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(l2KeyPrefix)})
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			slog.Warn("result cache: failed to clear normalized layer", "error", err)
		}
	}

	c.mu.Lock()
	c.semantic = nil
	c.mu.Unlock()

	atomic.StoreUint64(&c.exactHits, 0)
	atomic.StoreUint64(&c.normalizedHits, 0)
	atomic.StoreUint64(&c.semanticHits, 0)
	atomic.StoreUint64(&c.semanticValidated, 0)
	atomic.StoreUint64(&c.semanticRejected, 0)
	atomic.StoreUint64(&c.misses, 0)

	slog.Info("result cache: all layers cleared")
}

// Stats reports the counters its stats() operation exposes.
func (c *Cache) Stats() Stats {
	exact := atomic.LoadUint64(&c.exactHits)
	normalized := atomic.LoadUint64(&c.normalizedHits)
	semantic := atomic.LoadUint64(&c.semanticHits)
	validated := atomic.LoadUint64(&c.semanticValidated)
	rejected := atomic.LoadUint64(&c.semanticRejected)
	misses := atomic.LoadUint64(&c.misses)

	totalHits := exact + normalized + semantic
	totalRequests := totalHits + misses

	var hitRate float64
	if totalRequests > 0 {
		hitRate = float64(totalHits) / float64(totalRequests)
	}

	var precision float64
	if attempted := validated + rejected; attempted > 0 {
		precision = float64(validated) / float64(attempted)
	}

	return Stats{
		ExactHits:         exact,
		NormalizedHits:    normalized,
		SemanticHits:      semantic,
		SemanticValidated: validated,
		SemanticRejected:  rejected,
		Misses:            misses,
		TotalHits:         totalHits,
		TotalRequests:     totalRequests,
		HitRate:           hitRate,
		SemanticPrecision: precision,
	}
}

func (c *Cache) ttl(configured, fallback time.Duration) time.Duration {
	if configured <= 0 {
		return fallback
	}
	return configured
}

// timeNow is a thin seam so tests can observe CachedAt deterministically
// without this package reaching for a full clock abstraction for one field.
var timeNow = time.Now
