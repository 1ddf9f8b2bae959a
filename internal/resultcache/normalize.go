// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var punctuationPattern = regexp.MustCompile(`[^\w\s?]`)

var articles = map[string]bool{"a": true, "an": true, "the": true}

// normalizeQuery canonicalizes a query for fuzzy-exact matching, ported
// rule-for-rule from cache_next_gen.py's QueryNormalizer.normalize:
// lowercase, collapse whitespace, strip punctuation except '?', then drop
// every article token (a/an/the), wherever it appears.
func normalizeQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.Join(strings.Fields(normalized), " ")
	normalized = punctuationPattern.ReplaceAllString(normalized, " ")
	normalized = strings.Join(strings.Fields(normalized), " ")

	words := strings.Fields(normalized)
	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if !articles[w] {
			filtered = append(filtered, w)
		}
	}
	return strings.Join(filtered, " ")
}

// hashQuery returns the cache key digest for text. sha256 rather than
// cache_next_gen.py's MD5 - this repo has already standardized on sha256
// for content-addressed keys (embedcache.Cache.key, rerank.cacheKey).
func hashQuery(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
