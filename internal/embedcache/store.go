// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedcache implements C4: a persistent, process-external
// key→vector cache backed by badger, sitting in front of C1's embedding
// backend.
package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config controls how the underlying badger store is opened.
type Config struct {
	InMemory          bool
	Path              string
	SyncWrites        bool
	NumVersionsToKeep int
	GCInterval        time.Duration
}

// DefaultConfig is a persistent, durable store suitable for production.
func DefaultConfig() Config {
	return Config{
		InMemory:          false,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
	}
}

// InMemoryConfig is for tests and ephemeral runs: no disk footprint, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0,
	}
}

// Open returns a raw badger handle for cfg. Persistent mode requires a path.
func Open(cfg Config) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("path is required for persistent badger store")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(cfg.NumVersionsToKeep).
		WithLogger(nil) // badger's own logger is silenced; this package logs via slog

	return badger.Open(opts)
}

// OpenInMemory is a convenience wrapper around Open(InMemoryConfig()).
func OpenInMemory() (*badger.DB, error) {
	return Open(InMemoryConfig())
}

// OpenWithPath is a convenience wrapper around Open(DefaultConfig()) with
// Path set.
func OpenWithPath(path string) (*badger.DB, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return Open(cfg)
}

// DB wraps a badger handle with context-aware transaction helpers.
type DB struct {
	bdb *badger.DB
	cfg Config
}

// OpenDB opens and wraps a badger store per cfg.
func OpenDB(cfg Config) (*DB, error) {
	bdb, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{bdb: bdb, cfg: cfg}, nil
}

// Close releases the underlying badger store.
func (d *DB) Close() error {
	return d.bdb.Close()
}

// WithTxn runs fn in a read-write transaction, aborting up front if ctx is
// already cancelled.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return d.bdb.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction, aborting up front if ctx
// is already cancelled.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return d.bdb.View(fn)
}

// GCRunner periodically reclaims badger's value log space. Persistent
// stores should run one; in-memory stores have nothing to reclaim.
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewGCRunner validates its arguments and returns a runner that has not yet
// started. ratio is badger's discard ratio (0, 1) - 0.5 is badger's own
// recommended default.
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, fmt.Errorf("db must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("ratio must be between 0 and 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCRunner{db: db, interval: interval, ratio: ratio, logger: logger, stop: make(chan struct{})}, nil
}

// Start runs GC on a background goroutine until Stop is called.
func (g *GCRunner) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.runOnce()
			case <-g.stop:
				return
			}
		}
	}()
}

// runOnce calls RunValueLogGC repeatedly until it has nothing left to
// reclaim, which is badger's documented usage pattern.
func (g *GCRunner) runOnce() {
	for {
		if err := g.db.RunValueLogGC(g.ratio); err != nil {
			if err != badger.ErrNoRewrite {
				g.logger.Warn("embedding cache value log GC failed", "error", err)
			}
			return
		}
	}
}

// Stop halts the background goroutine and waits for it to exit.
func (g *GCRunner) Stop() {
	close(g.stop)
	g.wg.Wait()
}

// TempDir creates a fresh temporary directory for a test-scoped badger
// store.
func TempDir(prefix string) (string, error) {
	return os.MkdirTemp("", prefix)
}

// CleanupDir removes a directory created by TempDir; a blank path is a
// no-op so callers can defer it unconditionally.
func CleanupDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}
