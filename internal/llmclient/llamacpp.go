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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// LlamaCppClient talks to a local llama.cpp server's /completion endpoint.
// This is the default backend ("the LLM runtime... we only consume a
// text-in/text-out contract with optional token streaming").
type LlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type llamaCppRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type llamaCppResponse struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

// NewLlamaCppClient reads LLM_SERVICE_URL_BASE; it is the one required
// setting.
func NewLlamaCppClient() (*LlamaCppClient, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: LLM_SERVICE_URL_BASE not set", ErrInit)
	}
	return &LlamaCppClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (l *LlamaCppClient) buildPayload(prompt string, params GenerationParams, stream bool) llamaCppRequest {
	payload := llamaCppRequest{Prompt: prompt, Stream: stream}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	} else {
		payload.NPredict = 512
	}
	payload.Temperature = params.Temperature
	payload.TopK = params.TopK
	payload.TopP = params.TopP
	if params.Stop != nil {
		payload.Stop = params.Stop
	}
	return payload
}

// Generate implements Client.
func (l *LlamaCppClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	payload := l.buildPayload(prompt, params, false)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal llama.cpp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build llama.cpp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrBusy
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llama.cpp response: %w", err)
	}
	var out llamaCppResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse llama.cpp response: %w", err)
	}
	return out.Content, nil
}

// Chat implements Client by flattening history into a single prompt;
// llama.cpp's /completion endpoint has no native chat-turn structure.
func (l *LlamaCppClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	return l.Generate(ctx, flattenMessages(messages), params)
}

// ChatStream implements Client by reading llama.cpp's streaming response,
// one JSON object per line.
func (l *LlamaCppClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error {
	payload := l.buildPayload(flattenMessages(messages), params, true)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal llama.cpp stream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build llama.cpp stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrBusy
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		line = bytes.TrimPrefix(line, []byte("data: "))
		if len(line) == 0 {
			continue
		}
		var chunk llamaCppResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("llama.cpp stream: malformed chunk, skipping", "error", err)
			continue
		}
		if chunk.Content != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Content}); err != nil {
				return err
			}
		}
		if chunk.Stop {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read llama.cpp stream: %w", err)
	}
	return nil
}

func flattenMessages(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

var _ Client = (*LlamaCppClient)(nil)
