// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prefetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jinterlante1206/tacticalrag/internal/embedding"
)

// Config controls the prefetcher's background worker and queueing.
type Config struct {
	// MaxConcurrentPrefetches bounds simultaneous background prefetch
	// executions so warming the cache never competes meaningfully with
	// live request traffic for embedding-backend capacity.
	MaxConcurrentPrefetches int

	// PredictionWindowSize is how many recent queries feed keyword
	// extraction and confidence scoring.
	PredictionWindowSize int

	// MaxQueueSize caps the total number of queued-but-not-yet-executed
	// predictions across all priorities. Beyond it, enqueue applies the
	// overflow policy (drop newest LOW, then newest MEDIUM, then newest
	// HIGH with a warning) rather than growing unbounded.
	MaxQueueSize int

	// MaxPredictionsPerQuery bounds how many follow-up queries one
	// PredictAndPrefetch call can enqueue.
	MaxPredictionsPerQuery int

	// RateLimitPerSecond and RateLimitBurst shape how fast queued
	// predictions are executed, independent of MaxConcurrentPrefetches -
	// the limiter bounds throughput, the concurrency bound bounds
	// simultaneity.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// WorkerInterval is how often the background loop checks the queues.
	WorkerInterval time.Duration
}

// DefaultConfig returns the defaults: three concurrent prefetches, a
// ten-query prediction window.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPrefetches: 3,
		PredictionWindowSize:    10,
		MaxQueueSize:            50,
		MaxPredictionsPerQuery:  3,
		RateLimitPerSecond:      5,
		RateLimitBurst:          5,
		WorkerInterval:          100 * time.Millisecond,
	}
}

// Prefetcher predicts follow-up queries from conversation flow and warms
// the embedding cache for them in the background. It never performs a
// full retrieval - only the embedding step, which is the part C9/C4's
// caches can actually reuse without re-running the whole pipeline.
type Prefetcher struct {
	embedder embedding.Embedder
	analyzer *Analyzer
	config   Config
	limiter  *rate.Limiter

	mu        sync.Mutex
	history   []string
	queues    map[Priority][]*Task
	predicted map[string]*Task
	active    int
	metrics   Metrics

	done    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New wires a Prefetcher around an embedder and the given config.
func New(embedder embedding.Embedder, config Config) *Prefetcher {
	return &Prefetcher{
		embedder: embedder,
		analyzer: NewAnalyzer(),
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimitPerSecond), config.RateLimitBurst),
		queues: map[Priority][]*Task{
			PriorityHigh:   {},
			PriorityMedium: {},
			PriorityLow:    {},
		},
		predicted: make(map[string]*Task),
		done:      make(chan struct{}),
	}
}

// Start launches the background worker that executes queued predictions.
// It returns immediately; the worker runs until ctx is cancelled or Stop
// is called.
func (p *Prefetcher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.workerLoop(ctx)
}

// Stop halts the background worker and waits for any in-flight
// executions to finish.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// OnQueryReceived records query in conversation history, credits a
// prefetch hit if query was predicted earlier, and synchronously
// predicts its likely follow-ups. Prediction itself is pattern matching
// over a handful of strings - cheap enough to run inline - but the
// embedding warm-up it schedules always runs on the background worker,
// so this call never blocks on network I/O.
func (p *Prefetcher) OnQueryReceived(query string) *Pattern {
	p.mu.Lock()
	if task, ok := p.predicted[hashQuery(query)]; ok && task.Executed {
		p.metrics.SuccessfulHits++
		slog.Debug("prefetch hit", "query_preview", preview(query))
	}

	p.history = append(p.history, query)
	if len(p.history) > p.config.PredictionWindowSize {
		p.history = p.history[len(p.history)-p.config.PredictionWindowSize:]
	}
	history := append([]string(nil), p.history...)
	p.mu.Unlock()

	return p.predictAndPrefetch(query, history)
}

func (p *Prefetcher) predictAndPrefetch(query string, history []string) *Pattern {
	queryType := p.analyzer.ClassifyQuery(query)
	predictions, confidence := p.analyzer.PredictNextQueries(query, history, queryType, p.config.MaxPredictionsPerQuery)

	p.mu.Lock()
	p.metrics.TotalPredictions++
	p.mu.Unlock()

	if len(predictions) == 0 {
		return nil
	}

	pattern := Pattern{
		QueryType:        queryType,
		Confidence:       confidence,
		ContextKeywords:  p.analyzer.ExtractKeywords(query, history, 5),
		PredictedQueries: predictions,
		DetectedAt:       timeNow(),
	}
	priority := PriorityFor(confidence)

	p.mu.Lock()
	for _, predicted := range predictions {
		task := &Task{Query: predicted, Pattern: pattern, Priority: priority, CreatedAt: timeNow()}
		p.enqueueLocked(task)
		p.predicted[hashQuery(predicted)] = task
	}
	p.mu.Unlock()

	slog.Debug("prefetch predicted", "query_type", queryType.String(),
		"confidence", confidence, "priority", priority.String(), "count", len(predictions))
	return &pattern
}

// enqueueLocked appends task to its priority queue, applying the
// back-pressure policy if the combined queue length is already at
// capacity: evict the newest LOW item first, then the newest MEDIUM
// item, then - only as a last resort, with a warning - the newest HIGH
// item. Callers must hold p.mu.
func (p *Prefetcher) enqueueLocked(task *Task) {
	if p.totalQueuedLocked() >= p.config.MaxQueueSize {
		p.evictOneLocked()
	}
	p.queues[task.Priority] = append(p.queues[task.Priority], task)
}

func (p *Prefetcher) totalQueuedLocked() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}

func (p *Prefetcher) evictOneLocked() {
	for _, priority := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		q := p.queues[priority]
		if len(q) == 0 {
			continue
		}
		p.queues[priority] = q[:len(q)-1]
		p.metrics.DroppedOverflow++
		if priority == PriorityHigh {
			slog.Warn("prefetch queue overflow, dropping high-priority prediction", "queue_size", p.config.MaxQueueSize)
		}
		return
	}
}

// workerLoop drains the priority queues under a concurrency bound,
// favoring lower priorities only while the pool has spare capacity: below
// 25% busy, process everything; below 50%, HIGH and MEDIUM; otherwise
// HIGH only.
func (p *Prefetcher) workerLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.dispatchOne(ctx)
		}
	}
}

func (p *Prefetcher) dispatchOne(ctx context.Context) {
	p.mu.Lock()
	if p.active >= p.config.MaxConcurrentPrefetches {
		p.mu.Unlock()
		return
	}
	capacityUsed := float64(p.active) / float64(p.config.MaxConcurrentPrefetches)

	var priorities []Priority
	switch {
	case capacityUsed < 0.25:
		priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}
	case capacityUsed < 0.5:
		priorities = []Priority{PriorityHigh, PriorityMedium}
	default:
		priorities = []Priority{PriorityHigh}
	}

	var task *Task
	for _, priority := range priorities {
		q := p.queues[priority]
		if len(q) > 0 {
			task = q[0]
			p.queues[priority] = q[1:]
			break
		}
	}
	if task == nil {
		p.mu.Unlock()
		return
	}
	p.active++
	p.mu.Unlock()

	p.wg.Add(1)
	go p.execute(ctx, task)
}

func (p *Prefetcher) execute(ctx context.Context, task *Task) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	start := timeNow()
	_, err := p.embedder.EmbedOne(ctx, task.Query)
	duration := timeNow().Sub(start)

	p.mu.Lock()
	if err != nil {
		p.metrics.FailedPrefetches++
		p.mu.Unlock()
		slog.Debug("prefetch execution failed", "query_preview", preview(task.Query), "error", err)
		return
	}
	task.Executed = true
	task.ExecutionTime = duration
	p.metrics.TotalPrefetches++
	p.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of prefetch effectiveness.
func (p *Prefetcher) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := p.metrics
	snapshot.ActiveTasks = p.active
	snapshot.HistorySize = len(p.history)
	snapshot.QueueSizes = map[Priority]int{
		PriorityHigh:   len(p.queues[PriorityHigh]),
		PriorityMedium: len(p.queues[PriorityMedium]),
		PriorityLow:    len(p.queues[PriorityLow]),
	}
	return snapshot
}

// ClearHistory resets conversation tracking and all queued predictions -
// used when a conversation ends so one session's patterns never leak
// into predictions for the next.
func (p *Prefetcher) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = nil
	p.predicted = make(map[string]*Task)
	for priority := range p.queues {
		p.queues[priority] = nil
	}
}

func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func preview(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}

var timeNow = time.Now
