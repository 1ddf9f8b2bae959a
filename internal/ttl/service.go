// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ttlService implements TTLService directly against Weaviate's Document
// collection. It is independent of internal/vectorstore's Searcher -
// bulk TTL sweeps are a different access pattern (unbounded scan-and-
// delete) from the bounded, latency-sensitive reads Searcher serves.
type ttlService struct {
	client       *weaviate.Client
	clockChecker ClockChecker
}

// NewTTLService wires a TTLService backed by an already-connected Weaviate
// client.
func NewTTLService(client *weaviate.Client) TTLService {
	return &ttlService{client: client, clockChecker: NewClockChecker()}
}

// GetExpiredDocuments queries Document objects with 0 < ttl_expires_at <
// now. A ttl_expires_at of 0 means "never expires" and is excluded by the
// GreaterThan(0) clause, not merely by the LessThan(now) one - a document
// ingested with a buggy negative TTL must not accidentally pass this
// filter.
func (s *ttlService) GetExpiredDocuments(ctx context.Context, limit int) ([]ExpiredDocument, error) {
	currentTimeMs, err := s.clockChecker.CurrentTimeMs()
	if err != nil {
		return nil, fmt.Errorf("clock sanity check failed, refusing ttl query: %w", err)
	}

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"ttl_expires_at"}).WithOperator(filters.GreaterThan).WithValueNumber(0),
			filters.Where().WithPath([]string{"ttl_expires_at"}).WithOperator(filters.LessThan).WithValueNumber(float64(currentTimeMs)),
		})

	result, err := s.client.GraphQL().Get().
		WithClassName("Document").
		WithWhere(where).
		WithLimit(limit).
		WithFields(
			graphql.Field{Name: "_additional { id }"},
			graphql.Field{Name: "parent_source"},
			graphql.Field{Name: "data_space"},
			graphql.Field{Name: "ttl_expires_at"},
			graphql.Field{Name: "ingested_at"},
		).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("query expired documents: %w", err)
	}

	return parseExpiredDocuments(result)
}

// DeleteExpiredBatch deletes each document individually - Weaviate's bulk
// delete-by-filter API exists, but per-document deletion keeps a failure
// isolated to its own CleanupError instead of risking the whole batch.
func (s *ttlService) DeleteExpiredBatch(ctx context.Context, docs []ExpiredDocument) (CleanupResult, error) {
	result := CleanupResult{DocumentsFound: len(docs)}

	for _, doc := range docs {
		err := s.client.Data().Deleter().
			WithClassName("Document").
			WithID(doc.WeaviateID).
			Do(ctx)
		if err != nil {
			slog.Warn("ttl: failed to delete expired document",
				"weaviate_id", doc.WeaviateID, "parent_source", doc.ParentSource, "error", err)
			result.Errors = append(result.Errors, CleanupError{WeaviateID: doc.WeaviateID, Reason: err.Error()})
			continue
		}
		result.DocumentsDeleted++
	}

	if result.HasErrors() && result.DocumentsDeleted > 0 {
		result.RolledBack = false // partial success is reported, not rolled back - deletes are independent
	}
	return result, nil
}

type expiredDocumentsResponse struct {
	Get struct {
		Document []struct {
			ParentSource string  `json:"parent_source"`
			DataSpace    string  `json:"data_space"`
			TTLExpiresAt int64   `json:"ttl_expires_at"`
			IngestedAt   int64   `json:"ingested_at"`
			Additional   struct {
				ID string `json:"id"`
			} `json:"_additional"`
		} `json:"Document"`
	} `json:"Get"`
}

func parseExpiredDocuments(resp *models.GraphQLResponse) ([]ExpiredDocument, error) {
	parsed, err := vectorstore.ParseGraphQLResponse[expiredDocumentsResponse](resp)
	if err != nil {
		return nil, err
	}

	docs := make([]ExpiredDocument, 0, len(parsed.Get.Document))
	for _, d := range parsed.Get.Document {
		docs = append(docs, ExpiredDocument{
			WeaviateID:   d.Additional.ID,
			ParentSource: d.ParentSource,
			DataSpace:    d.DataSpace,
			TTLExpiresAt: d.TTLExpiresAt,
			IngestedAt:   d.IngestedAt,
		})
	}
	return docs, nil
}
