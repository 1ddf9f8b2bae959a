// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package answer implements C8: grounded answer generation over a set of
// retrieved documents, with citation validation and a streaming event
// sequence a transport layer can forward directly to a client.
package answer

import (
	"context"
	"errors"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
)

var (
	// ErrNoDocuments means Generate was called with zero retrieved
	// documents - there is nothing to ground an answer in.
	ErrNoDocuments = errors.New("answer: no documents to answer from")

	// ErrLLMBusy means the underlying generation call reported it could
	// not accept new work (e.g. a saturated worker pool).
	ErrLLMBusy = errors.New("answer: LLM busy")

	// ErrLLMTimeout means generation did not complete within the
	// configured budget.
	ErrLLMTimeout = errors.New("answer: LLM timeout")
)

// GenerateFunc adapts a C3 LLM client's streaming generation call. Each
// call delivers token from the model until the stream ends or ctx is
// cancelled; token is empty on the final callback, err is non-nil only on
// failure.
type GenerateFunc func(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(token string) error) (full string, err error)

// Source is one retrieved document as formatted for the answer's sources
// event, deduplicated by the document's source file.
type Source struct {
	FileName      string
	DataSpace     string
	RelevanceScore float32
	Excerpt       string
}

// EventKind tags a streamed Event's payload. Events follow a fixed
// sequence: sources -> token* -> metadata -> done|error.
type EventKind string

const (
	EventSources  EventKind = "sources"
	EventToken    EventKind = "token"
	EventMetadata EventKind = "metadata"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Metadata accompanies the metadata event: grounding/citation diagnostics a
// caller can log or surface, computed after the full answer is known.
type Metadata struct {
	CitedSources    []string
	UncitedSources  []string
	GroundingScore  float64 // fraction of answer sentences that reference a source
	Classification  querytransform.Classification
}

// Event is one item in the streamed sequence. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Event struct {
	Kind     EventKind
	Sources  []Source
	Token    string
	Metadata Metadata
	Err      error
}

// Config bounds prompt construction and citation checking.
type Config struct {
	// MaxContextDocuments caps how many documents are included as context
	// blocks, regardless of how many Generate receives ("top-T
	// documents as numbered context blocks").
	MaxContextDocuments int

	// MaxContextCharsPerDoc truncates each context block's content.
	// contextCharsFor lowers this bound further for classifications whose
	// answers are expected to be short.
	MaxContextCharsPerDoc int

	// MaxTokens bounds the generated answer's length.
	MaxTokens int

	// Temperature controls answer generation's sampling temperature.
	Temperature float32

	// RequireCitations, when true, causes Generate to flag an answer that
	// cites none of its source documents as ungrounded in Metadata rather
	// than silently accepting it.
	RequireCitations bool
}

// DefaultConfig caps context at 5 documents with a generous but real
// per-document character bound, since an unbounded per-document context
// block risks starving the prompt budget on a single oversized document.
func DefaultConfig() Config {
	return Config{
		MaxContextDocuments:   5,
		MaxContextCharsPerDoc: 4000,
		MaxTokens:             2048,
		Temperature:           0.2,
		RequireCitations:      true,
	}
}

// contextCharsFor returns the per-classification context budget, tightening
// for classifications whose answers are expected to be short (its
// "per-class length bounds").
func (c Config) contextCharsFor(classification querytransform.Classification) int {
	switch classification {
	case querytransform.Factual, querytransform.Clarification, querytransform.Definition:
		return min(c.MaxContextCharsPerDoc, 1500)
	case querytransform.Complex, querytransform.Comparison:
		return c.MaxContextCharsPerDoc
	default:
		return min(c.MaxContextCharsPerDoc, 2500)
	}
}
