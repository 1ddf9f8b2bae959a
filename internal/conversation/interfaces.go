// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation implements C11: a bounded per-conversation history
// with context extraction for follow-up queries. It never performs its own
// retrieval - "tell me more" style follow-ups are resolved by handing C5/C7
// an augmented query string built from recent exchanges, never by searching
// a conversation-specific index.
package conversation

import "context"

// Memory is C11's capability interface: add an exchange, derive an
// augmented query for retrieval from recent history, and clear the log.
//
// # Description
//
// Implementations keep one bounded log per conversation ID. ContextFor must
// never change the meaning of the query for classification or for anything
// shown to the user - the original query must survive
// unaltered at the end of the augmented string, and to be the value used
// wherever citations or classification are concerned.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use across conversations; a
// lock per conversation is sufficient.
type Memory interface {
	// Add records one exchange. retrievedDocs are document identifiers
	// (sources), not full content - the log stores what was used, not a
	// second copy of the corpus.
	Add(ctx context.Context, conversationID, query, answer string, retrievedDocs []string, classification, strategy string)

	// ContextFor returns a retrieval-only augmented query plus the entries
	// it drew from. augmentedQuery ends with the unmodified query; callers
	// must use query (not augmentedQuery) for classification and for
	// anything rendered back to the user.
	ContextFor(ctx context.Context, conversationID, query string, maxEntries int) (augmentedQuery string, used []Entry)

	// Clear discards a conversation's history.
	Clear(conversationID string)
}
