// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package answer

import (
	"context"
	"errors"
	"strings"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
)

// Generator is C8. It has no notion of HTTP or SSE framing - it yields a
// channel of Event in the fixed sequence sources -> token* -> metadata ->
// done|error, and a transport layer (internal/httpapi) adapts that
// sequence onto the wire.
type Generator struct {
	generate GenerateFunc
	config   Config
}

// NewGenerator wires a Generator.
func NewGenerator(generate GenerateFunc, config Config) *Generator {
	return &Generator{generate: generate, config: config}
}

// Generate streams one answer grounded in documents. The returned channel
// is closed after the terminal done or error event. Generate itself never
// returns an error - all failure reporting goes through the error event -
// so a caller only needs to range over the channel.
func (g *Generator) Generate(ctx context.Context, query string, classification querytransform.Classification, documents []vectorstore.Document, scores []float32) <-chan Event {
	events := make(chan Event, 8)

	go func() {
		defer close(events)

		if len(documents) == 0 {
			events <- Event{Kind: EventError, Err: ErrNoDocuments}
			return
		}

		events <- Event{Kind: EventSources, Sources: formatSources(documents, scores)}

		prompt, err := buildGroundedPrompt(query, documents, g.config, classification)
		if err != nil {
			events <- Event{Kind: EventError, Err: err}
			return
		}

		var answerText strings.Builder
		onToken := func(token string) error {
			if token == "" {
				return nil
			}
			answerText.WriteString(token)
			select {
			case events <- Event{Kind: EventToken, Token: token}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		full, err := g.generate(ctx, prompt, g.config.MaxTokens, g.config.Temperature, onToken)
		if err != nil {
			events <- Event{Kind: EventError, Err: classifyGenerateError(err)}
			return
		}
		if full == "" {
			full = answerText.String()
		}

		metadata := validateCitations(full, documents)
		metadata.Classification = classification
		if g.config.RequireCitations && len(metadata.CitedSources) == 0 {
			metadata.GroundingScore = 0
		}
		events <- Event{Kind: EventMetadata, Metadata: metadata}
		events <- Event{Kind: EventDone}
	}()

	return events
}

// classifyGenerateError maps a generation failure onto C8's named error
// set so a transport layer can pick an appropriate HTTP status / retry
// policy without string-matching the underlying client error.
func classifyGenerateError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrLLMTimeout
	case err == nil:
		return nil
	default:
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "busy") || strings.Contains(msg, "queue full") || strings.Contains(msg, "saturated") {
			return ErrLLMBusy
		}
		return err
	}
}

// formatSources deduplicates documents by source file, keeping a 250-char
// excerpt and the carried relevance_score.
func formatSources(documents []vectorstore.Document, scores []float32) []Source {
	seen := make(map[string]bool, len(documents))
	var sources []Source
	for i, doc := range documents {
		name := doc.Source
		if name == "" {
			name = "Unknown"
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		excerpt := doc.Content
		if len(excerpt) > 250 {
			excerpt = excerpt[:250] + "..."
		}

		var score float32
		if i < len(scores) {
			score = scores[i]
		}

		sources = append(sources, Source{
			FileName:       name,
			DataSpace:      doc.DataSpace,
			RelevanceScore: score,
			Excerpt:        excerpt,
		})
	}
	return sources
}
