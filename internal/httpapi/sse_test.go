// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEChain_ChainsHashesAcrossEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	chain, err := newSSEChain(rec)
	require.NoError(t, err)

	require.NoError(t, chain.write(wireEvent{Type: "sources"}))
	firstHash := chain.prevHash

	require.NoError(t, chain.write(wireEvent{Type: "token", Token: "hello"}))
	secondHash := chain.prevHash

	assert.NotEmpty(t, firstHash)
	assert.NotEqual(t, firstHash, secondHash)
	assert.Contains(t, rec.Body.String(), "\"prev_hash\":\""+firstHash+"\"")
}

func TestSSEChain_WritesSSEFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	chain, err := newSSEChain(rec)
	require.NoError(t, err)

	require.NoError(t, chain.write(wireEvent{Type: "done"}))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: done\ndata: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestHashEvent_DifferentTokensProduceDifferentHashes(t *testing.T) {
	a := hashEvent(wireEvent{Id: "x", Type: "token", Token: "hello"})
	b := hashEvent(wireEvent{Id: "x", Type: "token", Token: "world"})
	assert.NotEqual(t, a, b)
}
