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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// documentClassName is the collection name this package queries. Creating
// it is not a C2 responsibility in production (ingestion owns the index),
// but EnsureDocumentSchema exists so integration tests and
// local dev can bootstrap a throwaway instance against the same contract.
const documentClassName = "Document"

// GetDocumentSchema returns the Document collection definition matching the
// index layout contract: a named vector "dense" (HNSW, cosine distance)
// plus a named vector "sparse" (HNSW with default settings), BM25 on the
// inverted index, and a payload of text + metadata. vectorDimensions is
// not read; the class sets no vector dimension.
func GetDocumentSchema(vectorDimensions int) *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       documentClassName,
		Description: "A chunk of policy document text with its dense and sparse vectors.",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		InvertedIndexConfig: &models.InvertedIndexConfig{
			Bm25: &models.BM25Config{
				B:  0.75,
				K1: 1.2,
			},
			IndexNullState:      true,
			IndexPropertyLength: false,
			IndexTimestamps:     true,
			UsingBlockMaxWAND:   true,
		},
		// VectorConfig names both the dense and sparse vector spaces a point
		// carries, using the fixed logical names "dense" and "sparse".
		VectorConfig: map[string]models.VectorConfig{
			"dense": {
				Vectorizer: map[string]interface{}{
					"none": map[string]interface{}{},
				},
				VectorIndexType: "hnsw",
				VectorIndexConfig: map[string]interface{}{
					"distance":       "cosine",
					"efConstruction": 128,
					"maxConnections": 64,
				},
			},
			"sparse": {
				Vectorizer: map[string]interface{}{
					"none": map[string]interface{}{},
				},
				VectorIndexType: "hnsw",
			},
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text that was embedded.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The originating document path.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "parent_source",
				DataType:        []string{"text"},
				Description:     "The original pre-chunk document, if this is a chunk.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "version_tag",
				DataType:        []string{"text"},
				Description:     "A version tag (e.g. 'v1', 'v2') for this document.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "version_number",
				DataType:        []string{"int"},
				Description:     "Numeric version for ordering. Auto-incremented on re-ingest.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "is_current",
				DataType:        []string{"boolean"},
				Description:     "True if this is the latest version of the document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "data_space",
				DataType:        []string{"text"},
				Description:     "Logical data space for segmentation (e.g. 'public', 'restricted').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Unix ms timestamp of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ttl_expires_at",
				DataType:        []string{"number"},
				Description:     "Unix ms timestamp when this chunk expires. 0 = never expires.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureDocumentSchema creates the Document collection if it does not
// already exist. Intended for integration tests and local bootstrap only;
// it is not on the query path and is never called from a request handler.
func EnsureDocumentSchema(ctx context.Context, client *weaviate.Client, vectorDimensions int) error {
	_, err := client.Schema().ClassGetter().WithClassName(documentClassName).Do(ctx)
	if err == nil {
		slog.Debug("vectorstore: schema already present", "class", documentClassName)
		return nil
	}

	class := GetDocumentSchema(vectorDimensions)
	slog.Info("vectorstore: creating schema", "class", documentClassName)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create schema for class %s: %w", documentClassName, err)
	}
	return nil
}
