// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rerank

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// scoreCache is an in-memory per-(query,document) LLM score cache, keyed
// by a hash of the query/document pair so repeated queries against the
// same corpus skip redundant LLM calls within a process lifetime.
type scoreCache struct {
	mu     sync.RWMutex
	scores map[string]float64
}

func newScoreCache() *scoreCache {
	return &scoreCache{scores: make(map[string]float64)}
}

// cacheKey hashes a truncated (query, document) pair, matching the
// original's _get_cache_key: short inputs keep the key itself short and
// avoid storing full document text as a map key.
func cacheKey(query, document string) string {
	q := truncate(query, 100)
	d := truncate(document, 500)
	sum := sha256.Sum256([]byte(q + "|" + d))
	return hex.EncodeToString(sum[:])
}

func (c *scoreCache) get(query, document string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.scores[cacheKey(query, document)]
	return score, ok
}

func (c *scoreCache) set(query, document string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[cacheKey(query, document)] = score
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
