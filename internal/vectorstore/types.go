// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore implements C2: dense, sparse, and hybrid search over a
// pre-built index. The index itself (HNSW graph + inverted index) is out of
// scope; this package only consumes a query interface against a named
// collection whose layout is a contract, not a design choice: each
// point carries a dense vector under a logical name ("dense"), an optional
// sparse vector under another ("sparse"), and a payload of text + metadata.
package vectorstore

import "errors"

// Scored errors. Scores returned by Searcher/HybridSearcher are opaque
// numeric similarities comparable only within a single call - callers must
// not compare scores across calls or backends.
var (
	// ErrStoreUnavailable means the backend could not be reached or returned
	// a transient failure. Callers should degrade: log and continue
	// without this retrieval strategy rather than retry inside the pipeline.
	ErrStoreUnavailable = errors.New("vectorstore: store unavailable")

	// ErrFilterInvalid means a caller supplied a metadata Filter this backend
	// cannot honor. Per the Design Notes, a backend that cannot apply a
	// filter must refuse the call, never silently ignore the filter and
	// return unfiltered results.
	ErrFilterInvalid = errors.New("vectorstore: filter invalid")
)

// Document is a single point's payload as returned from a search: the text
// that was embedded plus whatever metadata the collection carries.
type Document struct {
	ID           string
	Content      string
	Source       string
	ParentSource string
	DataSpace    string
	VersionTag   string
	VersionNumber int
	IsCurrent    bool
	IngestedAt   int64
	TTLExpiresAt int64
}

// Scored pairs a Document with its opaque similarity score from one search
// call. RetrievalResult (C7) composes these into ordered sequences.
type Scored struct {
	Document Document
	Score    float32
}

// FusionMethod selects how hybrid_search combines dense and sparse prefetch
// lists. Only rrf (reciprocal rank fusion) and dbsf (distribution-based
// score fusion) are supported.
type FusionMethod string

const (
	FusionRRF  FusionMethod = "rrf"
	FusionDBSF FusionMethod = "dbsf"
)

// Filter constrains a search to points matching the given metadata
// predicates. All non-zero fields are ANDed together. A backend that
// receives a Filter field it does not support must return ErrFilterInvalid
// rather than run the search unfiltered.
type Filter struct {
	DataSpace    string
	VersionTag   string
	IsCurrentOnly bool
	ExcludeExpired bool
}

// IsZero reports whether f constrains anything at all.
func (f Filter) IsZero() bool {
	return f.DataSpace == "" && f.VersionTag == "" && !f.IsCurrentOnly && !f.ExcludeExpired
}
