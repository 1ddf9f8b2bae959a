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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tacticalrag.vectorstore")

// Searcher is the dense and sparse half of C2's capability surface (Design
// Notes: "a small set of capability interfaces... Variants are tagged types
// selected at startup" replaces duck-typed backends).
type Searcher interface {
	SearchDense(ctx context.Context, vector []float32, k int, filter Filter) ([]Scored, error)
	SearchSparse(ctx context.Context, queryText string, k int, filter Filter) ([]Scored, error)
}

// HybridSearcher adds fused dense+sparse retrieval. Not every backend can
// support it (a pure BM25 store, say); callers type-assert for it rather
// than requiring it on Searcher.
type HybridSearcher interface {
	Searcher
	HybridSearch(ctx context.Context, vector []float32, queryText string, k int, filter Filter, fusion FusionMethod) ([]Scored, error)
}

// prefetchMultiplier sizes the dense/sparse prefetch lists hybrid_search
// fuses from, relative to the requested k ("dense prefetch (size D)
// and sparse prefetch (size S), then fused top-k").
const prefetchMultiplier = 3

// documentFields is the GraphQL projection used by every query in this
// file; it must stay in sync with documentResult's json tags in query.go.
var documentFields = []graphql.Field{
	{Name: "content"},
	{Name: "source"},
	{Name: "parent_source"},
	{Name: "data_space"},
	{Name: "version_tag"},
	{Name: "version_number"},
	{Name: "is_current"},
	{Name: "ingested_at"},
	{Name: "ttl_expires_at"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "id"},
		{Name: "distance"},
		{Name: "certainty"},
	}},
}

// WeaviateStore implements Searcher and HybridSearcher against a Weaviate
// Document collection, plus a query-time TTL safety net: the background
// sweeper handles bulk expiry, and this filter catches what the sweeper
// hasn't gotten to yet.
type WeaviateStore struct {
	client    *weaviate.Client
	ttlFilter TTLQueryFilter
}

// NewWeaviateStore wraps an already-connected Weaviate client.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{
		client:    client,
		ttlFilter: NewTTLQueryFilter(0),
	}
}

// buildWhereFilter translates Filter into a Weaviate where-clause, ANDing
// every non-zero field. Returns (nil, nil) for a zero Filter. Every field on
// Filter must be handled here; validateFilter's doc comment explains why a
// new field must land here before it can ship.
func buildWhereFilter(f Filter) (*filters.WhereBuilder, error) {
	if err := validateFilter(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFilterInvalid, err)
	}
	if f.IsZero() {
		return nil, nil
	}

	var operands []*filters.WhereBuilder
	if f.DataSpace != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"data_space"}).
			WithOperator(filters.Equal).
			WithValueString(f.DataSpace))
	}
	if f.VersionTag != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"version_tag"}).
			WithOperator(filters.Equal).
			WithValueString(f.VersionTag))
	}
	if f.IsCurrentOnly {
		operands = append(operands, filters.Where().
			WithPath([]string{"is_current"}).
			WithOperator(filters.Equal).
			WithValueBoolean(true))
	}
	if f.ExcludeExpired {
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{"ttl_expires_at"}).
					WithOperator(filters.Equal).
					WithValueNumber(0),
				filters.Where().
					WithPath([]string{"ttl_expires_at"}).
					WithOperator(filters.GreaterThan).
					WithValueNumber(float64(time.Now().UnixMilli())),
			}))
	}

	if len(operands) == 1 {
		return operands[0], nil
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands), nil
}

// SearchDense performs approximate nearest-neighbor search over the "dense"
// named vector.
func (w *WeaviateStore) SearchDense(ctx context.Context, vector []float32, k int, filter Filter) ([]Scored, error) {
	ctx, span := tracer.Start(ctx, "SearchDense")
	defer span.End()

	where, err := buildWhereFilter(filter)
	if err != nil {
		return nil, err
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithTargetVectors("dense")

	q := w.client.GraphQL().Get().
		WithClassName(documentClassName).
		WithFields(documentFields...).
		WithNearVector(nearVector).
		WithLimit(k)
	if where != nil {
		q = q.WithWhere(where)
	}

	resp, err := q.Do(ctx)
	if err != nil {
		slog.Error("vectorstore: dense search failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return parseDocumentScores(resp, w.ttlFilter)
}

// SearchSparse performs BM25 keyword search over the "content" property;
// the "sparse" named vector is not queried.
func (w *WeaviateStore) SearchSparse(ctx context.Context, queryText string, k int, filter Filter) ([]Scored, error) {
	ctx, span := tracer.Start(ctx, "SearchSparse")
	defer span.End()

	where, err := buildWhereFilter(filter)
	if err != nil {
		return nil, err
	}

	bm25 := w.client.GraphQL().Bm25ArgBuilder().
		WithQuery(queryText).
		WithProperties("content")

	q := w.client.GraphQL().Get().
		WithClassName(documentClassName).
		WithFields(documentFields...).
		WithBM25(bm25).
		WithLimit(k)
	if where != nil {
		q = q.WithWhere(where)
	}

	resp, err := q.Do(ctx)
	if err != nil {
		slog.Error("vectorstore: sparse search failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return parseDocumentScores(resp, w.ttlFilter)
}

// HybridSearch fetches a dense prefetch list of size k*prefetchMultiplier
// and a sparse prefetch list of the same size, then fuses them client-side
//. Weaviate's own native hybrid/alpha blending is not used here
// because the contract's fusion methods (rrf, dbsf) are defined over two
// independently-ranked lists, not a single blended score.
func (w *WeaviateStore) HybridSearch(ctx context.Context, vector []float32, queryText string, k int, filter Filter, fusion FusionMethod) ([]Scored, error) {
	ctx, span := tracer.Start(ctx, "HybridSearch")
	defer span.End()

	prefetchK := k * prefetchMultiplier
	if prefetchK < k {
		prefetchK = k
	}

	dense, err := w.SearchDense(ctx, vector, prefetchK, filter)
	if err != nil {
		return nil, err
	}
	sparse, err := w.SearchSparse(ctx, queryText, prefetchK, filter)
	if err != nil {
		return nil, err
	}

	var fused []Scored
	switch fusion {
	case FusionDBSF:
		fused = fuseDBSF(dense, sparse, 0)
	default:
		fused = fuseRRF(dense, sparse, 60)
	}
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

// parseDocumentScores converts a raw GraphQL response into Scored results,
// applying the query-time TTL safety net.
func parseDocumentScores(resp *models.GraphQLResponse, ttlFilter TTLQueryFilter) ([]Scored, error) {
	parsed, err := ParseGraphQLResponse[documentQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("parse document search results: %w", err)
	}

	out := make([]Scored, 0, len(parsed.Get.Document))
	for _, r := range parsed.Get.Document {
		if ttlFilter.IsExpired(r.TTLExpiresAt) {
			continue
		}
		out = append(out, Scored{Document: r.toDocument(), Score: r.score()})
	}
	return out, nil
}

var (
	_ Searcher       = (*WeaviateStore)(nil)
	_ HybridSearcher = (*WeaviateStore)(nil)
)
