// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmclient defines the LLM backend contract and the single-worker
// serialization required by the underlying inference engine.
//
// # Architecture
//
// Backends (llama.cpp over HTTP, Ollama, an OpenAI-compatible API) implement
// Client directly. None of them is safe for concurrent Generate/Chat/
// ChatStream calls — the underlying engine is single-threaded — so callers
// never talk to a backend directly. Worker wraps any Client and serializes
// every call onto one logical worker via a capacity-1 semaphore, presenting
// the same Client interface to the rest of the service.
package llmclient

import (
	"context"
	"errors"
)

// Message is one turn of a chat-style conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams holds parameters for LLM generation. nil pointer fields
// mean "use the backend's default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType categorizes a StreamEvent.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is emitted by ChatStream for each token or terminal condition.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives streaming events in generation order from a single
// goroutine. Returning an error aborts the stream at the next safe token
// boundary rather than mid-token.
type StreamCallback func(event StreamEvent) error

// Sentinel errors covering the backend error taxonomy. Backends return these
// (or wrap them) so the HTTP layer can map them to 429/503/500.
var (
	// ErrBusy means the engine is occupied and the caller should fast-fail
	// rather than queue indefinitely (transient).
	ErrBusy = errors.New("llm: busy")
	// ErrTimeout means the call exceeded its deadline (transient).
	ErrTimeout = errors.New("llm: timeout")
	// ErrInit means the backend failed to initialize (fatal at startup).
	ErrInit = errors.New("llm: init error")
)

// Client is the capability interface any LLM backend must satisfy.
// Implementations are NOT required to be safe for concurrent use — see
// Worker, which provides that guarantee uniformly for every backend.
type Client interface {
	// Generate produces text from a single prompt (no conversation state).
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat conducts a conversation with message history and returns the
	// complete response.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// ChatStream is like Chat but streams the response token-by-token via
	// callback. If the callback returns an error, or ctx is cancelled,
	// streaming stops at the next token boundary and that error (or
	// context.Canceled) is returned.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error
}

// compile-time interface checks live alongside each backend's file.
