// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resultcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery_LowercasesAndCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "leave policy", normalizeQuery("  Leave   Policy  "))
}

func TestNormalizeQuery_StripsPunctuationButKeepsQuestionMark(t *testing.T) {
	assert.Equal(t, "what is dress code?", normalizeQuery("What is the dress-code?!"))
}

func TestNormalizeQuery_DropsLeadingArticles(t *testing.T) {
	assert.Equal(t, "leave policy", normalizeQuery("the leave policy"))
	assert.Equal(t, "expedited approval process", normalizeQuery("an expedited approval process"))
}

func TestNormalizeQuery_EquivalentQueriesNormalizeIdentically(t *testing.T) {
	a := normalizeQuery("What is the Leave Policy?")
	b := normalizeQuery("what is the leave policy?")
	assert.Equal(t, a, b)
}

func TestHashQuery_SameTextSameHash(t *testing.T) {
	assert.Equal(t, hashQuery("same text"), hashQuery("same text"))
}

func TestHashQuery_DifferentTextDifferentHash(t *testing.T) {
	assert.NotEqual(t, hashQuery("text a"), hashQuery("text b"))
}
