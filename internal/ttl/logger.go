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
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// auditLogFileMode restricts the audit log to owner read/write - it
// records which documents existed and when they were deleted, which is
// itself sensitive metadata.
const auditLogFileMode = 0600

// ttlLogger writes a tamper-evident deletion log alongside ordinary slog
// output. Each entry's EntryHash commits to the previous entry's hash, so
// editing a hashed field of a past line (see DeletionRecord) breaks
// verification of every line after it.
type ttlLogger struct {
	file     *os.File
	fileMu   sync.Mutex
	sequence int64
	prevHash string
}

// NewTTLLogger opens (or creates) logPath in append mode and resumes the
// hash chain from its last line, if any.
func NewTTLLogger(logPath string) (TTLLogger, error) {
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, auditLogFileMode)
	if err != nil {
		return nil, fmt.Errorf("open ttl audit log: %w", err)
	}

	l := &ttlLogger{file: file, prevHash: GenesisHash}
	if err := l.resumeChain(); err != nil {
		file.Close()
		return nil, fmt.Errorf("resume ttl audit chain: %w", err)
	}

	slog.Info("ttl audit logger initialized", "log_path", logPath, "starting_sequence", l.sequence)
	return l, nil
}

// resumeChain reads the log's last record (if any) so new entries link
// onto an existing chain rather than silently restarting at genesis.
func (l *ttlLogger) resumeChain() error {
	if _, err := l.file.Seek(0, 0); err != nil {
		return err
	}
	scanner := bufio.NewScanner(l.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var last DeletionRecord
	found := false
	for scanner.Scan() {
		var record DeletionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // tolerate a malformed line rather than refuse to start
		}
		last = record
		found = true
	}
	if found {
		l.sequence = last.Sequence
		l.prevHash = last.EntryHash
	}
	_, err := l.file.Seek(0, 2)
	return err
}

// LogCleanup appends one hash-chained record for a completed cleanup
// cycle. The chain links per cycle, not per document - at 1000 documents
// a batch, a per-document chain would dominate the scheduler's own work
// for no benefit this package's single sweeper needs.
func (l *ttlLogger) LogCleanup(result CleanupResult) error {
	slog.Info("ttl.cleanup.logged",
		"documents_found", result.DocumentsFound,
		"documents_deleted", result.DocumentsDeleted,
		"duration_ms", result.DurationMs(),
		"rolled_back", result.RolledBack,
	)

	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	l.sequence++
	record := DeletionRecord{
		Sequence:  l.sequence,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Summary:   result,
		PrevHash:  l.prevHash,
	}
	record.EntryHash = hashRecord(record)

	if err := l.appendLine(record); err != nil {
		l.sequence--
		return err
	}
	l.prevHash = record.EntryHash
	return nil
}

func (l *ttlLogger) LogError(err error, phase string) error {
	slog.Error("ttl.cleanup.error", "phase", phase, "error", err)
	return nil
}

func (l *ttlLogger) Close() error {
	return l.file.Close()
}

func (l *ttlLogger) appendLine(record DeletionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal deletion record: %w", err)
	}
	_, err = l.file.Write(append(raw, '\n'))
	return err
}

func hashRecord(r DeletionRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d|%d|%t|%s", r.Sequence, r.Timestamp, r.Summary.DocumentsFound, r.Summary.DocumentsDeleted, r.Summary.RolledBack, r.PrevHash)
	return hex.EncodeToString(h.Sum(nil))
}
