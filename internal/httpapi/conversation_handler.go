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

// handleConversationClear discards one conversation's bounded history.
// Clearing an id that was never used, or was already cleared, is not an
// error - the end state is identical either way.
func handleConversationClear(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Memory == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "conversation memory not configured"})
			return
		}

		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
			return
		}

		deps.Memory.Clear(conversationID)
		c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "cleared": true})
	}
}
