// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jinterlante1206/tacticalrag/internal/app"
)

// runServe reads deployment configuration from environment variables and
// starts the server; hot-reloadable pipeline tuning (top-k, temperature,
// presets, and the rest of C12) lives separately in the settings YAML file
// pointed to by RAG_SETTINGS_PATH, not here.
//
// # Environment Variables
//
//   - RAG_PORT: HTTP server port (default: 12210)
//   - RAG_EMBEDDING_BACKEND: llamacpp or openai (default: llamacpp)
//   - RAG_EMBEDDING_SERVICE_URL: llama.cpp embedding server base URL
//   - RAG_EMBEDDING_DIMENSION: expected embedding vector width
//   - RAG_LLM_BACKEND: llamacpp, ollama, or openai (default: llamacpp)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL
//   - RAG_EMBED_CACHE_DIR: badger on-disk path for the embedding/result caches
//   - RAG_SETTINGS_PATH: path to the hot-reloadable settings YAML (default: ./config/settings.yaml)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
//   - RAG_ENABLE_TRACING: "true" to export traces (default: false)
//   - RAG_ENABLE_METRICS: "true" to expose Prometheus metrics (default: true)
func runServe(cmd *cobra.Command, args []string) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := app.DefaultConfig()
	cfg.Port = getEnvInt("RAG_PORT", cfg.Port)
	cfg.EmbeddingBackend = getEnvString("RAG_EMBEDDING_BACKEND", cfg.EmbeddingBackend)
	cfg.EmbeddingServiceURLBase = getEnvString("RAG_EMBEDDING_SERVICE_URL", cfg.EmbeddingServiceURLBase)
	cfg.EmbeddingDimension = getEnvInt("RAG_EMBEDDING_DIMENSION", cfg.EmbeddingDimension)
	cfg.LLMBackend = getEnvString("RAG_LLM_BACKEND", cfg.LLMBackend)
	cfg.WeaviateURL = getEnvString("WEAVIATE_SERVICE_URL", cfg.WeaviateURL)
	cfg.EmbedCacheDir = getEnvString("RAG_EMBED_CACHE_DIR", cfg.EmbedCacheDir)
	cfg.SettingsPath = getEnvString("RAG_SETTINGS_PATH", cfg.SettingsPath)
	cfg.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)
	cfg.EnableTracing = getEnvBool("RAG_ENABLE_TRACING", cfg.EnableTracing)
	cfg.EnableMetrics = getEnvBool("RAG_ENABLE_METRICS", cfg.EnableMetrics)

	slog.Info("starting tacticalrag server",
		"port", cfg.Port,
		"embedding_backend", cfg.EmbeddingBackend,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
		"settings_path", cfg.SettingsPath,
	)

	engine, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to build tacticalrag engine: %v", err)
	}

	if err := engine.Run(); err != nil {
		log.Fatalf("tacticalrag server error: %v", err)
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
