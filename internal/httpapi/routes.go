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
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every route this service exposes against router,
// closing each handler over deps.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.Use(requestLogger())
	router.GET("/health", handleHealth(deps))

	v1 := router.Group("/v1")
	{
		v1.POST("/query", handleQuery(deps))
		v1.POST("/query/stream", handleQueryStream(deps))
		v1.GET("/query/ws", handleQueryWebSocket(deps))

		conversations := v1.Group("/conversations")
		{
			conversations.DELETE("/:conversationId", handleConversationClear(deps))
		}

		settings := v1.Group("/settings")
		{
			settings.GET("", handleGetSettings(deps))
			settings.PUT("", handlePutSettings(deps))
			settings.POST("/reset", handleResetSettings(deps))
		}

		cache := v1.Group("/cache")
		{
			cache.GET("/stats", handleCacheStats(deps))
			cache.POST("/invalidate", handleCacheInvalidate(deps))
			cache.POST("/clear", handleCacheClear(deps))
		}
	}
}
