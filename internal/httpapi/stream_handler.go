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
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jinterlante1206/tacticalrag/internal/answer"
	"github.com/jinterlante1206/tacticalrag/internal/resultcache"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
)

// handleQueryStream answers a query as a Server-Sent Events stream: one
// sources event, then a token event per token as the model generates, then
// one metadata event, then a terminal done or error event (its fixed
// sequence). A result-cache hit skips generation and is framed as a
// cache_hit event naming the layer, then a single token event carrying the
// whole cached answer, a metadata event, and done; it has no sources event.
func handleQueryStream(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := parseQueryRequest(c)
		if !ok {
			return
		}

		setSSEHeaders(c.Writer)
		chain, err := newSSEChain(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		filter := vectorstore.Filter{DataSpace: req.DataSpace, VersionTag: req.VersionTag}

		if deps.ResultCache != nil {
			if cached, layer, ok := deps.ResultCache.Get(ctx, req.Query, nil, nil); ok {
				writeCachedStream(chain, cached, layer)
				return
			}
		}

		augmentedQuery := req.Query
		if deps.Memory != nil && shouldUseContext(req) {
			augmentedQuery, _ = deps.Memory.ContextFor(ctx, req.ConversationID, req.Query, 3)
		}

		result, err := deps.Retriever.Retrieve(ctx, augmentedQuery, "", filter)
		if err != nil {
			slog.Error("retrieval failed", "error", err, "query", req.Query)
			_ = chain.write(wireEvent{Type: "error", Error: "retrieval failed"})
			return
		}

		docIDs := documentIDs(result.Documents)
		var queryEmbedding []float32
		if deps.Embedder != nil {
			queryEmbedding, _ = deps.Embedder.EmbedOne(ctx, req.Query)
		}
		if deps.ResultCache != nil && len(queryEmbedding) > 0 {
			if cached, layer, ok := deps.ResultCache.Get(ctx, req.Query, queryEmbedding, docIDs); ok {
				writeCachedStream(chain, cached, layer)
				return
			}
		}

		var answerText strings.Builder
		var metadata answer.Metadata
		for event := range deps.Generator.Generate(ctx, req.Query, result.Classification, result.Documents, result.Scores) {
			switch event.Kind {
			case answer.EventSources:
				_ = chain.write(wireEvent{Type: "sources", Sources: sourceViewsFrom(event.Sources)})
			case answer.EventToken:
				answerText.WriteString(event.Token)
				_ = chain.write(wireEvent{Type: "token", Token: event.Token})
			case answer.EventMetadata:
				metadata = event.Metadata
				_ = chain.write(wireEvent{Type: "metadata", Metadata: &wireMetadata{
					CitedSources:   metadata.CitedSources,
					UncitedSources: metadata.UncitedSources,
					GroundingScore: metadata.GroundingScore,
					Classification: string(metadata.Classification),
				}})
			case answer.EventError:
				slog.Error("generation failed", "error", event.Err, "query", req.Query)
				_ = chain.write(wireEvent{Type: "error", Error: event.Err.Error()})
				return
			case answer.EventDone:
				_ = chain.write(wireEvent{Type: "done"})
			}
		}

		if deps.Memory != nil && req.ConversationID != "" {
			deps.Memory.Add(ctx, req.ConversationID, req.Query, answerText.String(), docIDs, string(result.Classification), result.Strategy)
		}
		if deps.ResultCache != nil {
			deps.ResultCache.Put(ctx, req.Query, resultcache.CachedAnswer{
				Text:           answerText.String(),
				Strategy:       result.Strategy,
				Classification: string(result.Classification),
				GroundingScore: metadata.GroundingScore,
			}, queryEmbedding, docIDs)
		}
		if deps.Prefetcher != nil {
			deps.Prefetcher.OnQueryReceived(req.Query)
		}
	}
}

func writeCachedStream(chain *sseChain, cached resultcache.CachedAnswer, layer resultcache.Layer) {
	_ = chain.write(wireEvent{Type: "cache_hit", Token: string(layer)})
	_ = chain.write(wireEvent{Type: "token", Token: cached.Text})
	_ = chain.write(wireEvent{Type: "metadata", Metadata: &wireMetadata{
		GroundingScore: cached.GroundingScore,
		Classification: cached.Classification,
	}})
	_ = chain.write(wireEvent{Type: "done"})
}
