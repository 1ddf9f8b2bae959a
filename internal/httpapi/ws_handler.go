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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jinterlante1206/tacticalrag/internal/answer"
	"github.com/jinterlante1206/tacticalrag/internal/resultcache"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
)

// upgrader has no origin check of its own - same perimeter stance as the
// rest of this package: CORS and origin policy belong to whatever sits in
// front of it, not inside it.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsChain is the websocket counterpart of sseChain: same hash-chained
// wireEvent, written as a JSON message instead of an SSE frame. A
// connection keeps one chain for its whole lifetime, across every query it
// carries, so a saved transcript of the full connection verifies as one
// sequence rather than one per query.
type wsChain struct {
	conn     *websocket.Conn
	prevHash string
}

func (s *wsChain) write(event wireEvent) error {
	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = s.prevHash
	event.Hash = hashEvent(event)
	s.prevHash = event.Hash
	return s.conn.WriteJSON(event)
}

// handleQueryWebSocket is a second adapter over the same streaming answer
// protocol handleQueryStream frames as SSE - a long-lived connection a
// client can hold open across several queries, one JSON query message in
// per request, one event-per-message sequence out. Each connection handles
// one query per message cycle; it is not a chat socket with server-held
// conversation state of its own.
func handleQueryWebSocket(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		chain := &wsChain{conn: conn}

		for {
			var req QueryRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			req.Query = sanitizeQuery(req.Query)
			if len(req.Query) > maxQueryLength {
				_ = chain.write(wireEvent{Type: "error", Error: errQueryTooLarge.Error()})
				continue
			}
			if err := validate.Struct(req); err != nil {
				_ = chain.write(wireEvent{Type: "error", Error: err.Error()})
				continue
			}

			serveWebSocketQuery(c, deps, chain, req)
		}
	}
}

func serveWebSocketQuery(c *gin.Context, deps Dependencies, chain *wsChain, req QueryRequest) {
	ctx := c.Request.Context()
	filter := vectorstore.Filter{DataSpace: req.DataSpace, VersionTag: req.VersionTag}

	if deps.ResultCache != nil {
		if cached, layer, ok := deps.ResultCache.Get(ctx, req.Query, nil, nil); ok {
			writeCachedWebSocket(chain, cached, layer)
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
			writeCachedWebSocket(chain, cached, layer)
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

func writeCachedWebSocket(chain *wsChain, cached resultcache.CachedAnswer, layer resultcache.Layer) {
	_ = chain.write(wireEvent{Type: "cache_hit", Token: string(layer)})
	_ = chain.write(wireEvent{Type: "token", Token: cached.Text})
	_ = chain.write(wireEvent{Type: "metadata", Metadata: &wireMetadata{
		GroundingScore: cached.GroundingScore,
		Classification: cached.Classification,
	}})
	_ = chain.write(wireEvent{Type: "done"})
}
