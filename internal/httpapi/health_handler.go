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
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleHealth reports overall status plus a per-component breakdown
// ("health -> {status, components: {vector_store, llm, embedding,
// cache}}"). Overall status is "ok" only if every configured component
// checked healthy; an unconfigured component (nil HealthCheckFunc) is
// reported but does not by itself fail the overall status, since not
// every deployment wires every backend (e.g. no TTL/cache backend).
func handleHealth(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		components := gin.H{
			"vector_store": componentStatus(ctx, deps.Health.VectorStore),
			"llm":          componentStatus(ctx, deps.Health.LLM),
			"embedding":    componentStatus(ctx, deps.Health.Embedding),
			"cache":        componentStatus(ctx, deps.Health.Cache),
		}

		status := "ok"
		httpStatus := http.StatusOK
		for _, v := range components {
			if v != "ok" && v != "unconfigured" {
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}

		c.JSON(httpStatus, gin.H{"status": status, "components": components})
	}
}

func componentStatus(ctx context.Context, check HealthCheckFunc) string {
	if check == nil {
		return "unconfigured"
	}
	if err := check(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
