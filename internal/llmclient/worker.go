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
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"
)

// Worker wraps a Client and serializes every Generate/Chat/ChatStream call
// onto a single logical worker. The underlying inference engine is not
// thread-safe; calling it from two goroutines at once crashes or deadlocks
// it. A weighted semaphore of capacity 1 is the whole mechanism:
// acquiring it is FIFO, so queued callers are served in arrival order.
//
// QueueDepth bounds how many callers may wait for the worker at once. A
// caller that would exceed it gets ErrBusy immediately instead of queuing
// forever instead - a fast 429 beats an unbounded queue.
type Worker struct {
	backend    Client
	sem        *semaphore.Weighted
	queueDepth int64
	waiting    chan struct{} // buffered to queueDepth, used as an admission gate
}

// NewWorker builds a Worker around backend. queueDepth <= 0 means unbounded
// queuing (callers wait until their context is cancelled).
func NewWorker(backend Client, queueDepth int) *Worker {
	w := &Worker{
		backend: backend,
		sem:     semaphore.NewWeighted(1),
	}
	if queueDepth > 0 {
		w.queueDepth = int64(queueDepth)
		w.waiting = make(chan struct{}, queueDepth)
	}
	return w
}

// acquire reserves the single worker slot for the duration of fn, admitting
// at most queueDepth waiters ahead of the caller currently holding the slot.
func (w *Worker) acquire(ctx context.Context) (release func(), err error) {
	if w.waiting != nil {
		select {
		case w.waiting <- struct{}{}:
			defer func() { <-w.waiting }()
		default:
			return nil, ErrBusy
		}
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { w.sem.Release(1) }, nil
}

// Generate implements Client by serializing onto the single worker.
func (w *Worker) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	release, err := w.acquire(ctx)
	if err != nil {
		slog.Warn("llm worker rejected request", "error", err)
		return "", err
	}
	defer release()
	return w.backend.Generate(ctx, prompt, params)
}

// Chat implements Client by serializing onto the single worker.
func (w *Worker) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	release, err := w.acquire(ctx)
	if err != nil {
		slog.Warn("llm worker rejected request", "error", err)
		return "", err
	}
	defer release()
	return w.backend.Chat(ctx, messages, params)
}

// ChatStream implements Client by serializing onto the single worker. The
// semaphore is held for the full duration of the stream: the engine cannot
// accept a second call until this one finishes emitting tokens.
func (w *Worker) ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error {
	release, err := w.acquire(ctx)
	if err != nil {
		slog.Warn("llm worker rejected streaming request", "error", err)
		return err
	}
	defer release()
	return w.backend.ChatStream(ctx, messages, params, callback)
}

var _ Client = (*Worker)(nil)
