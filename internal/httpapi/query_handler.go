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

// handleQuery answers a single query over the full C5-C9 pipeline, checking
// the result cache before and after retrieval (the semantic layer needs the
// retrieved document IDs to validate a candidate hit, so it can only be
// consulted once retrieval has run).
func handleQuery(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := parseQueryRequest(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		filter := vectorstore.Filter{DataSpace: req.DataSpace, VersionTag: req.VersionTag}

		if deps.ResultCache != nil {
			if cached, layer, ok := deps.ResultCache.Get(ctx, req.Query, nil, nil); ok {
				c.JSON(http.StatusOK, cachedResponse(cached, layer))
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "retrieval failed"})
			return
		}

		docIDs := documentIDs(result.Documents)
		if deps.ResultCache != nil && deps.Embedder != nil {
			if vec, embedErr := deps.Embedder.EmbedOne(ctx, req.Query); embedErr == nil {
				if cached, layer, ok := deps.ResultCache.Get(ctx, req.Query, vec, docIDs); ok {
					c.JSON(http.StatusOK, cachedResponse(cached, layer))
					return
				}
			}
		}

		var sources []answer.Source
		var metadata answer.Metadata
		var answerText strings.Builder
		for event := range deps.Generator.Generate(ctx, req.Query, result.Classification, result.Documents, result.Scores) {
			switch event.Kind {
			case answer.EventSources:
				sources = event.Sources
			case answer.EventToken:
				answerText.WriteString(event.Token)
			case answer.EventMetadata:
				metadata = event.Metadata
			case answer.EventError:
				slog.Error("generation failed", "error", event.Err, "query", req.Query)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
				return
			case answer.EventDone:
				// Terminal marker; nothing further to capture.
			}
		}

		resp := QueryResponse{
			Answer:         answerText.String(),
			Sources:        sourceViewsFrom(sources),
			Classification: string(result.Classification),
			Strategy:       result.Strategy,
			GroundingScore: metadata.GroundingScore,
			CitedSources:   metadata.CitedSources,
			UncitedSources: metadata.UncitedSources,
		}

		if deps.Memory != nil && req.ConversationID != "" {
			deps.Memory.Add(ctx, req.ConversationID, req.Query, resp.Answer, docIDs, string(result.Classification), result.Strategy)
		}

		if deps.ResultCache != nil {
			var vec []float32
			if deps.Embedder != nil {
				vec, _ = deps.Embedder.EmbedOne(ctx, req.Query)
			}
			deps.ResultCache.Put(ctx, req.Query, resultcache.CachedAnswer{
				Text:           resp.Answer,
				Strategy:       resp.Strategy,
				Classification: resp.Classification,
				GroundingScore: resp.GroundingScore,
			}, vec, docIDs)
		}

		if deps.Prefetcher != nil {
			deps.Prefetcher.OnQueryReceived(req.Query)
		}

		c.JSON(http.StatusOK, resp)
	}
}

func documentIDs(docs []vectorstore.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func cachedResponse(cached resultcache.CachedAnswer, layer resultcache.Layer) QueryResponse {
	return QueryResponse{
		Answer:         cached.Text,
		Classification: cached.Classification,
		Strategy:       cached.Strategy,
		GroundingScore: cached.GroundingScore,
		FromCache:      true,
		CacheLayer:     string(layer),
	}
}
