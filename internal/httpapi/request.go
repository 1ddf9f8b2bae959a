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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxQueryLength mirrors its input constraint: question length 1..10_000.
const maxQueryLength = 10000

var errQueryTooLarge = errors.New("query exceeds maximum length")

// parseQueryRequest decodes, sanitizes, and validates a QueryRequest body.
// A caller gets a 413 for oversize input and a 400 for every other
// malformed-input case (its error taxonomy), so handlers never need to
// pick the status code themselves.
func parseQueryRequest(c *gin.Context) (QueryRequest, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return QueryRequest{}, false
	}

	req.Query = sanitizeQuery(req.Query)

	if len(req.Query) > maxQueryLength {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errQueryTooLarge.Error()})
		return QueryRequest{}, false
	}

	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return QueryRequest{}, false
	}

	return req, true
}
