// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultFileWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings().Retrieval.FinalK, settings.Retrieval.FinalK)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestLoad_ReadsExistingFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, Save(path, func() Settings {
		s := DefaultSettings()
		s.Retrieval.FinalK = 9
		return s
	}()))

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, settings.Retrieval.FinalK)
}

func TestLoad_ClampsValuesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	// Save clamps on write, so build the out-of-range YAML directly
	// rather than going through it.
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  final_k: 999\n"), 0644))

	settings, err := Load(path)
	require.NoError(t, err)
	require.LessOrEqual(t, settings.Retrieval.FinalK, 50)
}

func TestLoad_EnvOverrideWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, Save(path, DefaultSettings()))

	t.Setenv("RAG_LLM_TEMPERATURE", "1.1")

	settings, err := Load(path)
	require.NoError(t, err)
	require.InDelta(t, 1.1, settings.LLM.Temperature, 0.0001)
}

func TestLoad_PresetEnvOverrideSetsTopN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, Save(path, DefaultSettings()))

	t.Setenv("RAG_RERANK_PRESET", "deep")

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, settings.Reranking.LLMRerankTopN)
}
