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
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// sanitizeQuery strips non-printable control characters (keeping \n, \r,
// \t) and null bytes from raw query text.
// Prompt-injection-shaped text is deliberately left untouched here - it is
// logged, not rejected or rewritten, a policy decision that belongs to the
// generation stage's grounding checks, not to input sanitization.
func sanitizeQuery(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case 0:
			continue
		case '\n', '\r', '\t':
			b.WriteRune(r)
		default:
			if unicode.IsControl(r) {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
