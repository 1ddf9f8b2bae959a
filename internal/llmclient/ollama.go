// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OllamaClient talks to an Ollama-compatible /api/generate and /api/chat
// HTTP surface. It implements Client directly; callers that need the
// single-worker serialization guarantee wrap it in a Worker.
type OllamaClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	rateLimiter *rate.Limiter
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllamaClient builds a client from OLLAMA_BASE_URL (default
// http://localhost:11434) and OLLAMA_MODEL (default "llama3").
// callbackRatePerSecond bounds how often ChatStream invokes its callback,
// protecting slow consumers (e.g. an SSE writer) from being overrun by a
// fast model; 0 disables the limiter.
func NewOllamaClient(callbackRatePerSecond float64) *OllamaClient {
	baseURL := strings.TrimSuffix(envOr("OLLAMA_BASE_URL", "http://localhost:11434"), "/")
	model := envOr("OLLAMA_MODEL", "llama3")
	var limiter *rate.Limiter
	if callbackRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callbackRatePerSecond), 1)
	}
	return &OllamaClient{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		baseURL:     baseURL,
		model:       model,
		rateLimiter: limiter,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func buildOptions(params GenerationParams) map[string]interface{} {
	opts := map[string]interface{}{}
	if params.Temperature != nil {
		opts["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		opts["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		opts["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		opts["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		opts["stop"] = params.Stop
	}
	return opts
}

// Generate implements Client.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	payload := ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: false, Options: buildOptions(params)}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrBusy
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ollama generate response: %w", err)
	}
	var out ollamaGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse ollama generate response: %w", err)
	}
	return out.Response, nil
}

// Chat implements Client by collecting the token events of a streaming
// /api/chat call (ChatStream) into one string.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	var full strings.Builder
	err := o.ChatStream(ctx, messages, params, func(e StreamEvent) error {
		if e.Type == StreamEventToken {
			full.WriteString(e.Content)
		}
		return nil
	})
	return full.String(), err
}

// ChatStream implements Client by reading newline-delimited JSON chunks
// from Ollama's streaming /api/chat endpoint. Each chunk's callback
// invocation is rate-limited when o.rateLimiter is set, and the loop exits
// at the next chunk boundary when ctx is cancelled or the callback errors,
// stopping at the next safe token boundary rather than mid-token.
func (o *OllamaClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error {
	payload := ollamaChatRequest{Model: o.model, Messages: messages, Stream: true, Options: buildOptions(params)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ollama chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ollama chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		return ErrBusy
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("ollama stream: malformed chunk, skipping", "error", err)
			continue
		}
		if chunk.Error != "" {
			_ = callback(StreamEvent{Type: StreamEventError, Error: chunk.Error})
			return errors.New("ollama stream error: " + chunk.Error)
		}
		if chunk.Message.Content != "" {
			if o.rateLimiter != nil {
				if err := o.rateLimiter.Wait(ctx); err != nil {
					return err
				}
			}
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ollama stream: %w", err)
	}
	return nil
}

var _ Client = (*OllamaClient)(nil)
