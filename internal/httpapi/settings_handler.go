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
	"github.com/jinterlante1206/tacticalrag/internal/config"
)

// handleGetSettings returns the runtime settings snapshot currently in
// effect. It never blocks on a write - config.Store.Snapshot is lock-free.
func handleGetSettings(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Settings == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settings store not configured"})
			return
		}
		c.JSON(http.StatusOK, deps.Settings.Snapshot())
	}
}

// handlePutSettings replaces the runtime settings snapshot. The new values
// are clamped before they are stored - out-of-range input is corrected,
// never rejected. The pipeline stages built at startup keep the settings
// they were constructed with; a replaced snapshot does not reach them.
func handlePutSettings(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Settings == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settings store not configured"})
			return
		}

		var next config.Settings
		if err := c.ShouldBindJSON(&next); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		previous := deps.Settings.Replace(next)
		c.JSON(http.StatusOK, gin.H{
			"previous": previous,
			"current":  deps.Settings.Snapshot(),
		})
	}
}

// handleResetSettings restores the built-in defaults, clamped the same way
// any other Replace call is.
func handleResetSettings(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Settings == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settings store not configured"})
			return
		}

		previous := deps.Settings.Replace(config.DefaultSettings())
		c.JSON(http.StatusOK, gin.H{
			"previous": previous,
			"current":  deps.Settings.Snapshot(),
		})
	}
}
