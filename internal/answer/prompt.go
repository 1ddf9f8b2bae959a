// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package answer

import (
	"fmt"
	"strings"

	"github.com/jinterlante1206/tacticalrag/internal/querytransform"
	"github.com/jinterlante1206/tacticalrag/internal/vectorstore"
	"github.com/tmc/langchaingo/prompts"
)

// groundedAnswerTemplate is the standard RAG prompt shape (context ->
// question -> answer), extended with an explicit citation instruction
// ("citations required, referencing context blocks by number") so the
// downstream grounding check has something to validate against.
const groundedAnswerTemplate = `You are an AI assistant answering questions about policy documents.

Based ONLY on the following context documents, provide a clear, accurate, and concise answer to the user's question. If the context doesn't contain enough information to answer the question, say so plainly instead of guessing.

When you state a fact drawn from a document, cite it by its bracketed number, e.g. [2]. Every factual claim should be traceable to at least one citation.

CONTEXT:
{{.context}}

QUESTION: {{.question}}

ANSWER:`

// promptTemplate is built once; Format is safe for concurrent use since it
// only reads the compiled template.
var promptTemplate = prompts.NewPromptTemplate(groundedAnswerTemplate, []string{"context", "question"})

// buildContextBlocks numbers and truncates up to cfg.MaxContextDocuments
// documents into citation-addressable blocks, grounded on the original
// implementation's `context_parts.append(f"[Document {i} - {source}]...")`
// numbering scheme.
func buildContextBlocks(documents []vectorstore.Document, cfg Config, classification querytransform.Classification) string {
	limit := cfg.MaxContextDocuments
	if limit <= 0 || limit > len(documents) {
		limit = len(documents)
	}
	charBudget := cfg.contextCharsFor(classification)

	var b strings.Builder
	for i, doc := range documents[:limit] {
		source := doc.Source
		if source == "" {
			source = "Unknown"
		}
		content := doc.Content
		if charBudget > 0 && len(content) > charBudget {
			content = content[:charBudget]
		}
		fmt.Fprintf(&b, "[Document %d - %s]\n%s\n\n", i+1, source, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildGroundedPrompt assembles the full answer prompt via langchaingo's
// template formatter, keeping the template itself (and its placeholder
// names) as the single source of truth for the prompt's shape.
func buildGroundedPrompt(query string, documents []vectorstore.Document, cfg Config, classification querytransform.Classification) (string, error) {
	context := buildContextBlocks(documents, cfg, classification)
	return promptTemplate.Format(map[string]any{
		"context":  context,
		"question": query,
	})
}
