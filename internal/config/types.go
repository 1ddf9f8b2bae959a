// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config implements C12: typed, hot-reloadable runtime settings
// for the retrieval/rerank/cache/prefetch/LLM/embedding knobs. This is
// distinct from internal/app.Config, which is the
// process's static deployment configuration (port, backend selection) -
// Settings here are the tunables an operator can change without
// restarting the service.
package config

// Settings groups every runtime-tunable knob. Each group
// corresponds to one pipeline stage so a reader can find "the reranker's
// settings" without scanning a flat 30-field struct.
type Settings struct {
	Retrieval      RetrievalSettings      `yaml:"retrieval"`
	Reranking      RerankingSettings      `yaml:"reranking"`
	QueryTransform QueryTransformSettings `yaml:"query_transform"`
	Cache          CacheSettings          `yaml:"cache"`
	Prefetch       PrefetchSettings       `yaml:"prefetch"`
	LLM            LLMSettings            `yaml:"llm"`
	Embedding      EmbeddingSettings      `yaml:"embedding"`
}

// RetrievalSettings controls candidate generation and fusion.
type RetrievalSettings struct {
	InitialK           int     `yaml:"initial_k"`
	RerankK            int     `yaml:"rerank_k"`
	FinalK             int     `yaml:"final_k"`
	UseMultiQuery      bool    `yaml:"use_multi_query"`
	MultiQueryVariants int     `yaml:"multi_query_variants"`
	UseReranking       bool    `yaml:"use_reranking"`
	CrossEncoderModel  string  `yaml:"cross_encoder_model"`
	DenseWeight        float64 `yaml:"dense_weight"`
	SparseWeight       float64 `yaml:"sparse_weight"`
	RRFK               int     `yaml:"rrf_k"`
}

// Preset selects a bundled reranking depth/cost tradeoff; setting a preset
// overrides llm_rerank_top_n.
type Preset string

const (
	PresetQuick   Preset = "quick"
	PresetQuality Preset = "quality"
	PresetDeep    Preset = "deep"
)

// topNForPreset is the fixed override table: quick=2, quality=3, deep=5.
var topNForPreset = map[Preset]int{
	PresetQuick:   2,
	PresetQuality: 3,
	PresetDeep:    5,
}

// RerankingSettings controls the C6/C8 fine-pass rerank stage.
type RerankingSettings struct {
	EnableLLMReranking   bool    `yaml:"enable_llm_reranking"`
	LLMRerankTopN        int     `yaml:"llm_rerank_top_n"`
	RerankPreset         Preset  `yaml:"rerank_preset"`
	HybridRerankAlpha    float64 `yaml:"hybrid_rerank_alpha"`
	EnableNeuralReranker bool    `yaml:"enable_neural_reranker"`
}

// QueryTransformSettings controls C5.
type QueryTransformSettings struct {
	EnableHyDE              bool    `yaml:"enable_hyde"`
	EnableMultiqueryRewrite bool    `yaml:"enable_multiquery_rewrite"`
	EnableClassification    bool    `yaml:"enable_classification"`
	HydeTemperature         float64 `yaml:"hyde_temperature"`
	RewriteTemperature      float64 `yaml:"rewrite_temperature"`
}

// CacheSettings controls C9's per-layer TTLs and semantic-layer
// thresholds.
type CacheSettings struct {
	TTLExact              int     `yaml:"ttl_exact"`
	TTLSemantic           int     `yaml:"ttl_semantic"`
	SemanticThreshold     float64 `yaml:"semantic_threshold"`
	OverlapThreshold      float64 `yaml:"overlap_threshold"`
	SemanticCandidatesMax int     `yaml:"semantic_candidates_max"`
}

// PrefetchSettings controls C10.
type PrefetchSettings struct {
	Enabled       bool `yaml:"enabled"`
	MaxConcurrent int  `yaml:"max_concurrent"`
	WindowSize    int  `yaml:"window_size"`
}

// LLMSettings controls C3's generation parameters.
type LLMSettings struct {
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	TopK           int     `yaml:"top_k"`
	MaxTokens      int     `yaml:"max_tokens"`
	ContextSize    int     `yaml:"context_size"`
	NGPULayers     int     `yaml:"n_gpu_layers"`
	DraftModelPath string  `yaml:"draft_model_path,omitempty"`
}

// EmbeddingSettings controls C1.
type EmbeddingSettings struct {
	ModelName string `yaml:"model_name"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	Normalize bool   `yaml:"normalize"`
}

// DefaultSettings returns the built-in defaults, before any file or
// environment override is applied.
func DefaultSettings() Settings {
	return Settings{
		Retrieval: RetrievalSettings{
			InitialK:           20,
			RerankK:            10,
			FinalK:             5,
			UseMultiQuery:      true,
			MultiQueryVariants: 3,
			UseReranking:       true,
			CrossEncoderModel:  "",
			DenseWeight:        0.5,
			SparseWeight:       0.5,
			RRFK:               60,
		},
		Reranking: RerankingSettings{
			EnableLLMReranking:   true,
			LLMRerankTopN:        3,
			RerankPreset:         PresetQuality,
			HybridRerankAlpha:    0.6,
			EnableNeuralReranker: false,
		},
		QueryTransform: QueryTransformSettings{
			EnableHyDE:              true,
			EnableMultiqueryRewrite: true,
			EnableClassification:    true,
			HydeTemperature:         0.3,
			RewriteTemperature:      0.3,
		},
		Cache: CacheSettings{
			TTLExact:              3600,
			TTLSemantic:           600,
			SemanticThreshold:     0.98,
			OverlapThreshold:      0.80,
			SemanticCandidatesMax: 3,
		},
		Prefetch: PrefetchSettings{
			Enabled:       true,
			MaxConcurrent: 3,
			WindowSize:    10,
		},
		LLM: LLMSettings{
			Temperature: 0.2,
			TopP:        0.9,
			TopK:        40,
			MaxTokens:   1024,
			ContextSize: 8192,
			NGPULayers:  0,
		},
		Embedding: EmbeddingSettings{
			ModelName: "",
			Dimension: 768,
			BatchSize: 32,
			Normalize: true,
		},
	}
}

// ApplyPreset sets LLMRerankTopN from the fixed preset table and records
// which preset is active. An unrecognized preset is left untouched -
// Clamp is responsible for rejecting it outright.
func (s *Settings) ApplyPreset(preset Preset) {
	if topN, ok := topNForPreset[preset]; ok {
		s.Reranking.RerankPreset = preset
		s.Reranking.LLMRerankTopN = topN
	}
}
