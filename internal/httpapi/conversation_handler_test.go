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
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/tacticalrag/internal/conversation"
)

func newConversationRouter(memory conversation.Memory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	deps := Dependencies{Memory: memory}
	router.DELETE("/v1/conversations/:conversationId", handleConversationClear(deps))
	return router
}

func TestHandleConversationClear_ClearsHistory(t *testing.T) {
	memory := conversation.NewBoundedMemory(conversation.DefaultMemoryConfig(), nil)
	memory.Add(context.Background(), "conv-1", "question", "answer", nil, "factual", "simple")

	router := newConversationRouter(memory)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/conversations/conv-1", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	_, used := memory.ContextFor(context.Background(), "conv-1", "follow up", 3)
	assert.Empty(t, used)
}

func TestHandleConversationClear_WithoutMemoryReturnsUnavailable(t *testing.T) {
	router := newConversationRouter(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/conversations/conv-1", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
