// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDocumentSchema_ReturnsValidClass(t *testing.T) {
	schema := GetDocumentSchema(768)

	require.NotNil(t, schema)
	assert.Equal(t, "Document", schema.Class)
	assert.Equal(t, "none", schema.Vectorizer)
}

func TestGetDocumentSchema_HasRequiredProperties(t *testing.T) {
	schema := GetDocumentSchema(768)

	expected := []string{
		"content",
		"source",
		"parent_source",
		"version_tag",
		"version_number",
		"is_current",
		"data_space",
		"ingested_at",
		"ttl_expires_at",
	}

	require.NotNil(t, schema.Properties)
	assert.Len(t, schema.Properties, len(expected))

	names := make(map[string]bool)
	for _, prop := range schema.Properties {
		names[prop.Name] = true
	}
	for _, name := range expected {
		assert.True(t, names[name], "missing property: %s", name)
	}
}

func TestGetDocumentSchema_PropertyDataTypes(t *testing.T) {
	schema := GetDocumentSchema(768)

	want := map[string]string{
		"content":        "text",
		"source":         "text",
		"parent_source":  "text",
		"version_tag":    "text",
		"version_number": "int",
		"is_current":     "boolean",
		"data_space":     "text",
		"ingested_at":    "number",
		"ttl_expires_at": "number",
	}

	for _, prop := range schema.Properties {
		expectedType, ok := want[prop.Name]
		if !ok {
			continue
		}
		require.NotEmpty(t, prop.DataType, "DataType for %s should not be empty", prop.Name)
		assert.Equal(t, expectedType, prop.DataType[0], "DataType mismatch for %s", prop.Name)
	}
}

func TestGetDocumentSchema_InvertedIndexConfig(t *testing.T) {
	schema := GetDocumentSchema(768)

	require.NotNil(t, schema.InvertedIndexConfig)
	assert.True(t, schema.InvertedIndexConfig.IndexNullState)
	assert.True(t, schema.InvertedIndexConfig.IndexTimestamps)
	assert.False(t, schema.InvertedIndexConfig.IndexPropertyLength)
	require.NotNil(t, schema.InvertedIndexConfig.Bm25)
}

func TestGetDocumentSchema_HasDenseAndSparseVectors(t *testing.T) {
	schema := GetDocumentSchema(768)

	require.NotNil(t, schema.VectorConfig)
	_, hasDense := schema.VectorConfig["dense"]
	_, hasSparse := schema.VectorConfig["sparse"]
	assert.True(t, hasDense, "schema must name a \"dense\" vector space")
	assert.True(t, hasSparse, "schema must name a \"sparse\" vector space")
}
