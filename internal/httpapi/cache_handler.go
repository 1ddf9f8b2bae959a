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
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleCacheStats reports hit/miss counters per cache layer, the
// operator-facing complement to the per-request cache_layer field a query
// response already carries.
func handleCacheStats(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.ResultCache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result cache not configured"})
			return
		}
		c.JSON(http.StatusOK, deps.ResultCache.Stats())
	}
}

type cacheInvalidateRequest struct {
	Query string `json:"query" validate:"required,min=1,max=10000"`
}

// handleCacheInvalidate drops every layer's entry for one query, exact and
// normalized forms alike - a targeted correction after a bad answer is
// cached, without flushing everything else.
func handleCacheInvalidate(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.ResultCache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result cache not configured"})
			return
		}

		var req cacheInvalidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Query = sanitizeQuery(req.Query)
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		deps.ResultCache.Invalidate(c.Request.Context(), req.Query)
		c.JSON(http.StatusOK, gin.H{"invalidated": true})
	}
}

// handleCacheClear empties every layer. Intended for operator use after a
// corpus reindex invalidates cached answers wholesale.
func handleCacheClear(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.ResultCache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result cache not configured"})
			return
		}
		deps.ResultCache.ClearAll()
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	}
}
