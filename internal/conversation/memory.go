package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BoundedMemory implements Memory as a bounded, in-process per-conversation
// log. It never indexes anything - context_for's "augmented query" is built
// by ContextualEmbedder directly from the tail of a conversation's own log,
// and is used for retrieval only, never for classification or display.
//
// # Thread Safety
//
// One mutex per conversation ("a lock per conversation is sufficient").
// A package-level mutex only guards the map of per-conversation locks, so
// unrelated conversations never contend with each other.
type BoundedMemory struct {
	config   MemoryConfig
	embedder *ContextualEmbedder

	mu    sync.Mutex // guards logs and locks
	logs  map[string][]Entry
	locks map[string]*sync.Mutex
}

// NewBoundedMemory wires a ContextualEmbedder (LLM-backed or truncation-only,
// per config.Context) into a fresh, empty bounded log store.
func NewBoundedMemory(config MemoryConfig, generate GenerateFunc) *BoundedMemory {
	return &BoundedMemory{
		config:   config,
		embedder: NewContextualEmbedder(generate, config.Context),
		logs:     make(map[string][]Entry),
		locks:    make(map[string]*sync.Mutex),
	}
}

var _ Memory = (*BoundedMemory)(nil)

func (m *BoundedMemory) lockFor(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

// Add appends one exchange, then trims the log to MaxEntries.
//
// When the log overflows and summarization is enabled, the oldest entries
// are collapsed into a single summary entry rather than dropped outright;
// if summarization is disabled or fails, the oldest entries are simply
// dropped ("Summarization failure reduces to simple truncation").
func (m *BoundedMemory) Add(ctx context.Context, conversationID, query, answer string, retrievedDocs []string, classification, strategy string) {
	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	log := append(m.logs[conversationID], Entry{
		Query:          query,
		Answer:         answer,
		RetrievedDocs:  retrievedDocs,
		Classification: classification,
		Strategy:       strategy,
		Timestamp:      time.Now(),
	})
	m.mu.Unlock()

	log = m.compact(ctx, conversationID, log)

	m.mu.Lock()
	m.logs[conversationID] = log
	m.mu.Unlock()
}

func (m *BoundedMemory) compact(ctx context.Context, conversationID string, log []Entry) []Entry {
	maxEntries := m.config.MaxEntries
	if maxEntries <= 0 || len(log) <= maxEntries {
		return log
	}

	overflow := log[:len(log)-maxEntries+1]
	kept := log[len(log)-maxEntries+1:]
	trimmed := log[len(log)-maxEntries:]

	if !m.config.Context.SummarizationEnabled {
		return trimmed
	}

	summary, err := m.embedder.SummarizeContext(ctx, overflow)
	if err != nil || summary == "" {
		slog.Warn("conversation history summarization failed, dropping overflow entries",
			"conversation_id", conversationID, "error", err, "dropped", len(log)-maxEntries)
		return trimmed
	}

	summarized := Entry{
		Query:          "(summary of earlier exchanges)",
		Answer:         summary,
		Classification: "summary",
		Timestamp:      time.Now(),
	}
	return append([]Entry{summarized}, kept...)
}

// ContextFor returns an augmented query for retrieval, built from the most
// recent maxEntries of the conversation's log, plus the entries used to
// build it. The returned query always ends with the caller's original,
// unaltered query; classification and any user-visible text must
// use query directly, never augmentedQuery.
func (m *BoundedMemory) ContextFor(ctx context.Context, conversationID, query string, maxEntries int) (string, []Entry) {
	lock := m.lockFor(conversationID)
	lock.Lock()
	log := append([]Entry(nil), m.logs[conversationID]...)
	lock.Unlock()

	if len(log) == 0 {
		return m.embedder.BuildContextualQuery(ctx, query, nil), nil
	}

	if maxEntries <= 0 {
		maxEntries = 3
	}

	used := recent(log, maxEntries)
	augmented := m.embedder.BuildContextualQuery(ctx, query, used)
	return augmented, used
}

// recent returns up to n entries, most recent first.
func recent(log []Entry, n int) []Entry {
	if n > len(log) {
		n = len(log)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = log[len(log)-1-i]
	}
	return out
}

// Clear discards a conversation's history entirely.
func (m *BoundedMemory) Clear(conversationID string) {
	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.logs, conversationID)
	m.mu.Unlock()
}
