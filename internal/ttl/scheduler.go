// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig controls the background cleanup loop.
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultSchedulerConfig balances responsiveness against load: hourly
// sweeps, bounded batches so a single cycle can't stall on a huge backlog.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:  1 * time.Hour,
		BatchSize: 1000,
	}
}

// ttlScheduler runs document TTL cleanup on a ticker. It implements
// TTLScheduler.
type ttlScheduler struct {
	service TTLService
	logger  TTLLogger
	config  SchedulerConfig

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewTTLScheduler wires a scheduler; logger may be nil (slog still
// captures cleanup events either way).
func NewTTLScheduler(service TTLService, logger TTLLogger, config SchedulerConfig) TTLScheduler {
	return &ttlScheduler{
		service: service,
		logger:  logger,
		config:  config,
		done:    make(chan struct{}),
	}
}

func (s *ttlScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ttl scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("ttl cleanup scheduler starting", "interval", s.config.Interval.String(), "batch_size", s.config.BatchSize)
	go s.runLoop(ctx)
	return nil
}

func (s *ttlScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	slog.Info("ttl cleanup scheduler stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow triggers a cleanup cycle immediately, bypassing the ticker -
// useful from the admin/debug surface and from tests.
func (s *ttlScheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	return s.runCleanupCycle(ctx)
}

func (s *ttlScheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("ttl cleanup scheduler stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("ttl cleanup scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeCleanup(ctx)
		}
	}
}

func (s *ttlScheduler) executeCleanup(ctx context.Context) {
	result, err := s.runCleanupCycle(ctx)
	if err != nil {
		slog.Error("ttl cleanup cycle failed", "error", err)
		if s.logger != nil {
			_ = s.logger.LogError(err, "cleanup_cycle")
		}
		return
	}

	if result.DocumentsFound > 0 {
		slog.Info("ttl cleanup cycle completed",
			"documents_found", result.DocumentsFound,
			"documents_deleted", result.DocumentsDeleted,
			"duration_ms", result.DurationMs(),
			"rolled_back", result.RolledBack,
		)
	} else {
		slog.Debug("ttl cleanup cycle completed (no expired documents)")
	}

	if s.logger != nil {
		_ = s.logger.LogCleanup(result)
	}
}

func (s *ttlScheduler) runCleanupCycle(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{StartTime: time.Now()}

	expired, err := s.service.GetExpiredDocuments(ctx, s.config.BatchSize)
	if err != nil {
		result.EndTime = time.Now()
		return result, fmt.Errorf("query expired documents: %w", err)
	}
	result.DocumentsFound = len(expired)

	if len(expired) == 0 {
		result.EndTime = time.Now()
		return result, nil
	}

	deleteResult, err := s.service.DeleteExpiredBatch(ctx, expired)
	if err != nil {
		result.EndTime = time.Now()
		return result, fmt.Errorf("delete expired documents: %w", err)
	}
	deleteResult.StartTime = result.StartTime
	deleteResult.DocumentsFound = result.DocumentsFound
	deleteResult.EndTime = time.Now()
	return deleteResult, nil
}
