// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpapi is the HTTP perimeter around the retrieval/answer
// pipeline: request parsing, response serialization, and SSE framing.
// It owns no retrieval, caching, or generation logic of its own - every
// handler is a thin translation from an HTTP request to a call against
// the injected Dependencies and back.
//
// Identity, authentication, rate limiting, and CORS are deliberately not
// implemented here; they sit in front of this package in a reverse proxy
// or gateway, not inside it.
package httpapi

import (
	"context"

	"github.com/jinterlante1206/tacticalrag/internal/answer"
	"github.com/jinterlante1206/tacticalrag/internal/config"
	"github.com/jinterlante1206/tacticalrag/internal/conversation"
	"github.com/jinterlante1206/tacticalrag/internal/embedding"
	"github.com/jinterlante1206/tacticalrag/internal/prefetch"
	"github.com/jinterlante1206/tacticalrag/internal/resultcache"
	"github.com/jinterlante1206/tacticalrag/internal/retrieval"
)

// HealthCheckFunc reports whether one backing component is reachable. A
// nil error means healthy; any error's message is surfaced as-is to the
// health response ("health -> {status, components: {...}}").
type HealthCheckFunc func(ctx context.Context) error

// Dependencies are the already-constructed pipeline components a route
// needs. The caller (internal/app) owns their lifecycle; this package only
// ever reads from them.
type Dependencies struct {
	Retriever   *retrieval.Retriever
	Generator   *answer.Generator
	Memory      conversation.Memory
	Prefetcher  *prefetch.Prefetcher
	Embedder    embedding.Embedder
	ResultCache *resultcache.Cache
	Settings    *config.Store

	// Health checks one component each. A nil entry is reported as
	// "unconfigured" rather than silently omitted.
	Health struct {
		VectorStore HealthCheckFunc
		LLM         HealthCheckFunc
		Embedding   HealthCheckFunc
		Cache       HealthCheckFunc
	}
}

// QueryRequest is the body of a query and a streaming query request:
// question, mode, use_context, and an optional conversation id.
type QueryRequest struct {
	Query          string `json:"query" validate:"required,min=1,max=10000"`
	Mode           string `json:"mode" validate:"omitempty,oneof=simple adaptive"`
	UseContext     bool   `json:"use_context"`
	ConversationID string `json:"conversation_id"`
	DataSpace      string `json:"data_space"`
	VersionTag     string `json:"version_tag"`
}

const (
	ModeSimple   = "simple"
	ModeAdaptive = "adaptive"
)

// effectiveMode defaults an empty mode to adaptive - the fuller pipeline
// behavior - rather than silently picking the cheaper simple path.
func (r QueryRequest) effectiveMode() string {
	if r.Mode == "" {
		return ModeAdaptive
	}
	return r.Mode
}

// shouldUseContext reports whether a request's prior conversation turns
// should be folded into the retrieval query. Simple mode always answers the
// question standalone, regardless of use_context or a supplied id.
func shouldUseContext(r QueryRequest) bool {
	return r.effectiveMode() == ModeAdaptive && r.UseContext && r.ConversationID != ""
}

// SourceView is one cited document as rendered to an API caller.
type SourceView struct {
	FileName  string  `json:"file_name"`
	DataSpace string  `json:"data_space"`
	Score     float32 `json:"score"`
	Excerpt   string  `json:"excerpt"`
}

// QueryResponse is the non-streaming query endpoint's body.
type QueryResponse struct {
	Answer         string       `json:"answer"`
	Sources        []SourceView `json:"sources"`
	Classification string       `json:"classification"`
	Strategy       string       `json:"strategy"`
	GroundingScore float64      `json:"grounding_score"`
	CitedSources   []string     `json:"cited_sources"`
	UncitedSources []string     `json:"uncited_sources"`
	FromCache      bool         `json:"from_cache"`
	CacheLayer     string       `json:"cache_layer,omitempty"`
}

func sourceViewsFrom(sources []answer.Source) []SourceView {
	views := make([]SourceView, 0, len(sources))
	for _, s := range sources {
		views = append(views, SourceView{
			FileName:  s.FileName,
			DataSpace: s.DataSpace,
			Score:     s.RelevanceScore,
			Excerpt:   s.Excerpt,
		})
	}
	return views
}
