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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// wireEvent is the JSON shape one answer.Event takes on the wire. Id,
// CreatedAt, Hash, and PrevHash form a hash chain over the stream so a
// client (or an auditor replaying a saved transcript) can detect a
// truncated or reordered event sequence.
type wireEvent struct {
	Id        string        `json:"id"`
	CreatedAt int64         `json:"created_at"`
	Type      string        `json:"type"`
	Token     string        `json:"token,omitempty"`
	Sources   []SourceView  `json:"sources,omitempty"`
	Metadata  *wireMetadata `json:"metadata,omitempty"`
	Error     string        `json:"error,omitempty"`
	Hash      string        `json:"hash"`
	PrevHash  string        `json:"prev_hash,omitempty"`
}

type wireMetadata struct {
	CitedSources   []string `json:"cited_sources"`
	UncitedSources []string `json:"uncited_sources"`
	GroundingScore float64  `json:"grounding_score"`
	Classification string   `json:"classification"`
}

// sseChain writes a sequence of wireEvent values to an http.ResponseWriter
// as Server-Sent Events, maintaining the hash chain across calls.
type sseChain struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	prevHash string
}

func newSSEChain(w http.ResponseWriter) (*sseChain, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("httpapi: response writer does not support flushing")
	}
	return &sseChain{w: w, flusher: flusher}, nil
}

func (s *sseChain) write(event wireEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = s.prevHash
	event.Hash = hashEvent(event)
	s.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("httpapi: marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("httpapi: write sse event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// hashEvent covers every content field so a tampered or dropped event
// breaks the chain, not just a tampered id.
func hashEvent(event wireEvent) string {
	sourcesJSON := ""
	if len(event.Sources) > 0 {
		if data, err := json.Marshal(event.Sources); err == nil {
			sourcesJSON = string(data)
		}
	}
	metadataJSON := ""
	if event.Metadata != nil {
		if data, err := json.Marshal(event.Metadata); err == nil {
			metadataJSON = string(data)
		}
	}
	input := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		event.Id, event.Type, event.CreatedAt, event.PrevHash,
		event.Token, sourcesJSON, metadataJSON, event.Error,
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
