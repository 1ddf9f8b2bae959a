// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeLlamaCppServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llamaCppEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		results := make([]llamaCppEmbedResult, len(req.Content))
		for i := range req.Content {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i+1) * 0.1
			}
			results[i] = llamaCppEmbedResult{Index: i, Embedding: [][]float32{vec}}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(results))
	}))
}

func TestNewLlamaCppEmbedder_ValidatesDimension(t *testing.T) {
	server := newFakeLlamaCppServer(t, 384)
	defer server.Close()

	e, err := NewLlamaCppEmbedder(context.Background(), server.URL, 384)
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimension())
}

func TestNewLlamaCppEmbedder_MismatchIsFatal(t *testing.T) {
	server := newFakeLlamaCppServer(t, 384)
	defer server.Close()

	_, err := NewLlamaCppEmbedder(context.Background(), server.URL, 768)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestNewLlamaCppEmbedder_ZeroExpectedAdoptsBackendDimension(t *testing.T) {
	server := newFakeLlamaCppServer(t, 512)
	defer server.Close()

	e, err := NewLlamaCppEmbedder(context.Background(), server.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, 512, e.Dimension())
}

func TestLlamaCppEmbedder_EmbedOneRejectsEmptyText(t *testing.T) {
	server := newFakeLlamaCppServer(t, 8)
	defer server.Close()
	e, err := NewLlamaCppEmbedder(context.Background(), server.URL, 8)
	require.NoError(t, err)

	_, err = e.EmbedOne(context.Background(), "")
	assert.Error(t, err)
}

func TestLlamaCppEmbedder_EmbedManyMatchesInputLength(t *testing.T) {
	server := newFakeLlamaCppServer(t, 8)
	defer server.Close()
	e, err := NewLlamaCppEmbedder(context.Background(), server.URL, 8)
	require.NoError(t, err)

	vectors, err := e.EmbedMany(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Len(t, vectors, 4)
	for _, v := range vectors {
		assert.Len(t, v, 8)
	}
}

func TestLlamaCppEmbedder_EmbedManyEmptyInputReturnsNil(t *testing.T) {
	server := newFakeLlamaCppServer(t, 8)
	defer server.Close()
	e, err := NewLlamaCppEmbedder(context.Background(), server.URL, 8)
	require.NoError(t, err)

	vectors, err := e.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestLlamaCppEmbedder_BackendUnavailableWrapsErrUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewLlamaCppEmbedder(context.Background(), server.URL, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLlamaCppEmbedder_EmbedOneMatchesFirstOfEmbedMany(t *testing.T) {
	server := newFakeLlamaCppServer(t, 8)
	defer server.Close()
	e, err := NewLlamaCppEmbedder(context.Background(), server.URL, 8)
	require.NoError(t, err)

	single, err := e.EmbedOne(context.Background(), "same text")
	require.NoError(t, err)

	many, err := e.EmbedMany(context.Background(), []string{"same text"})
	require.NoError(t, err)
	assert.Equal(t, single, many[0])
}
