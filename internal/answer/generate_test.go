// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(events <-chan Event) []Event {
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestGenerate_NoDocumentsEmitsErrorOnly(t *testing.T) {
	g := NewGenerator(nil, DefaultConfig())
	events := collect(g.Generate(context.Background(), "q", querytransform.Factual, nil, nil))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, ErrNoDocuments)
}

func TestGenerate_HappyPathEmitsFixedSequence(t *testing.T) {
	docs := []vectorstore.Document{
		{ID: "d1", Source: "leave.pdf", Content: "Employees accrue leave monthly."},
	}
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(string) error) (string, error) {
		for _, tok := range []string{"Leave ", "accrues [1] monthly."} {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
		return "Leave accrues [1] monthly.", nil
	}
	g := NewGenerator(generate, DefaultConfig())
	events := collect(g.Generate(context.Background(), "how does leave accrue", querytransform.Procedure, docs, []float32{0.8}))

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, EventSources, events[0].Kind)
	assert.Equal(t, EventToken, events[1].Kind)
	assert.Equal(t, EventToken, events[2].Kind)
	assert.Equal(t, EventMetadata, events[len(events)-2].Kind)
	assert.Equal(t, EventDone, events[len(events)-1].Kind)
}

func TestGenerate_SourcesAreDedupedByFile(t *testing.T) {
	docs := []vectorstore.Document{
		{ID: "d1", Source: "same.pdf", Content: "first chunk"},
		{ID: "d2", Source: "same.pdf", Content: "second chunk"},
		{ID: "d3", Source: "other.pdf", Content: "third chunk"},
	}
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(string) error) (string, error) {
		return "answer [1]", nil
	}
	g := NewGenerator(generate, DefaultConfig())
	events := collect(g.Generate(context.Background(), "q", querytransform.Factual, docs, nil))

	require.Equal(t, EventSources, events[0].Kind)
	assert.Len(t, events[0].Sources, 2)
}

func TestGenerate_GenerationFailureEmitsErrorEvent(t *testing.T) {
	docs := []vectorstore.Document{{ID: "d1", Source: "a.pdf", Content: "content"}}
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(string) error) (string, error) {
		return "", errors.New("model queue full")
	}
	g := NewGenerator(generate, DefaultConfig())
	events := collect(g.Generate(context.Background(), "q", querytransform.Factual, docs, nil))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Kind)
	assert.ErrorIs(t, last.Err, ErrLLMBusy)
}

func TestGenerate_DeadlineExceededMapsToTimeout(t *testing.T) {
	docs := []vectorstore.Document{{ID: "d1", Source: "a.pdf", Content: "content"}}
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(string) error) (string, error) {
		return "", context.DeadlineExceeded
	}
	g := NewGenerator(generate, DefaultConfig())
	events := collect(g.Generate(context.Background(), "q", querytransform.Factual, docs, nil))

	last := events[len(events)-1]
	assert.ErrorIs(t, last.Err, ErrLLMTimeout)
}

func TestGenerate_MetadataReflectsCitations(t *testing.T) {
	docs := []vectorstore.Document{
		{ID: "d1", Source: "a.pdf", Content: "content a"},
		{ID: "d2", Source: "b.pdf", Content: "content b"},
	}
	generate := func(ctx context.Context, prompt string, maxTokens int, temperature float32, onToken func(string) error) (string, error) {
		return "This fact comes from document one [1]. This is unsupported.", nil
	}
	g := NewGenerator(generate, DefaultConfig())
	events := collect(g.Generate(context.Background(), "q", querytransform.Factual, docs, nil))

	var metaEvent Event
	for _, e := range events {
		if e.Kind == EventMetadata {
			metaEvent = e
		}
	}
	assert.Equal(t, []string{"a.pdf"}, metaEvent.Metadata.CitedSources)
	assert.Equal(t, []string{"b.pdf"}, metaEvent.Metadata.UncitedSources)
}
