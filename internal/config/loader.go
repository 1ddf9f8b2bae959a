// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads Settings from path, creating it with defaults on first run,
// then layers environment overrides on top, then clamps the result. It
// takes an explicit path rather than a home-directory singleton since a
// deployed service's config file lives wherever its operator mounts it,
// not necessarily under the server process's home directory.
func Load(path string) (Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return Settings{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}

	applyEnvOverrides(&settings)
	settings.Clamp()
	return settings, nil
}

// Save writes settings to path as YAML, clamping first so a bad
// in-memory value never reaches disk.
func Save(path string, settings Settings) error {
	settings.Clamp()
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides layers environment variables on top of the loaded
// file, matching the repo-wide convention of env-driven overrides for
// the handful of knobs operators most often need to flip without
// touching the settings file itself - the rest stay file- or
// API-managed.
func applyEnvOverrides(s *Settings) {
	s.Reranking.EnableLLMReranking = getEnvBool("RAG_ENABLE_LLM_RERANKING", s.Reranking.EnableLLMReranking)
	if preset := os.Getenv("RAG_RERANK_PRESET"); preset != "" {
		s.ApplyPreset(Preset(preset))
	}
	s.QueryTransform.EnableHyDE = getEnvBool("RAG_ENABLE_HYDE", s.QueryTransform.EnableHyDE)
	s.Prefetch.Enabled = getEnvBool("RAG_PREFETCH_ENABLED", s.Prefetch.Enabled)
	s.LLM.Temperature = getEnvFloat("RAG_LLM_TEMPERATURE", s.LLM.Temperature)
	s.LLM.MaxTokens = getEnvInt("RAG_LLM_MAX_TOKENS", s.LLM.MaxTokens)
	s.Cache.TTLExact = getEnvInt("RAG_CACHE_TTL_EXACT", s.Cache.TTLExact)
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
