// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is the default entry lifetime: 7 days.
const DefaultTTL = 7 * 24 * time.Hour

// Stats reports the counters exposed to monitoring.
type Stats struct {
	Hits       uint64
	Misses     uint64
	HitRate    float64
	AvgLatency time.Duration
}

// Cache is C4's embedding cache: a badger-backed key→vector store keyed by
// a version-tagged hex digest of the exact text (its storage format).
//
// # Thread Safety
//
// Safe for many concurrent readers and writers - badger itself serializes
// writes internally, and this type's own counters are atomic.
type Cache struct {
	db      *DB
	version string
	ttl     time.Duration

	hits, misses uint64
	latencySumNs int64
	latencyCount uint64
}

// NewCache wires a Cache on top of an already-open DB. version namespaces
// keys by embedding model/config so switching backends never returns a
// vector computed by a different model (its dimension-mismatch concern,
// one layer down in the cache).
func NewCache(db *DB, version string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, version: version, ttl: ttl}
}

func (c *Cache) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(c.version + ":" + hex.EncodeToString(sum[:]))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding cache: corrupt value, length %d not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Get looks up text's cached embedding. ok is false on miss, corrupt
// entry, or any backend error - a read failure degrades to a cache miss
// rather than propagating - caching is best-effort.
func (c *Cache) Get(ctx context.Context, text string) (vector []float32, ok bool) {
	start := time.Now()
	defer func() { c.recordLatency(time.Since(start)) }()

	key := c.key(text)
	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
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
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	vector, decErr := decodeVector(raw)
	if decErr != nil {
		slog.Warn("embedding cache: dropping corrupt entry", "error", decErr)
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)
	return vector, true
}

// Set stores text's embedding under the cache's configured TTL. Writes are
// best-effort ("a failed write must not fail the caller") - a
// failure is logged and otherwise swallowed.
func (c *Cache) Set(ctx context.Context, text string, vector []float32) {
	entry := badger.NewEntry(c.key(text), encodeVector(vector)).WithTTL(c.ttl)
	err := c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("embedding cache: best-effort write failed", "error", err)
	}
}

// BatchGet looks up multiple texts, returning one result per input in
// input order; a nil entry marks a miss.
func (c *Cache) BatchGet(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := c.Get(ctx, text); ok {
			out[i] = v
		}
	}
	return out
}

// BatchSet stores multiple pairs in one badger transaction, so a large
// write-back from C7's retrieval stage doesn't pay per-call transaction
// overhead per vector. Best-effort like Set: any failure is logged, never
// returned.
func (c *Cache) BatchSet(ctx context.Context, pairs map[string][]float32) {
	err := c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for text, vector := range pairs {
			entry := badger.NewEntry(c.key(text), encodeVector(vector)).WithTTL(c.ttl)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("embedding cache: best-effort batch write failed", "error", err, "count", len(pairs))
	}
}

// Invalidate removes one cached entry, e.g. once a document version is
// superseded and its stale embedding must stop being served.
func (c *Cache) Invalidate(ctx context.Context, text string) error {
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		err := txn.Delete(c.key(text))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Stats returns hit/miss counters, derived hit rate, and average Get
// latency ("hits, misses, hit rate, average latency; exposed to
// monitoring").
func (c *Cache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	count := atomic.LoadUint64(&c.latencyCount)
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(atomic.LoadInt64(&c.latencySumNs) / int64(count))
	}

	return Stats{Hits: hits, Misses: misses, HitRate: hitRate, AvgLatency: avg}
}

func (c *Cache) recordLatency(d time.Duration) {
	atomic.AddInt64(&c.latencySumNs, int64(d))
	atomic.AddUint64(&c.latencyCount, 1)
}
