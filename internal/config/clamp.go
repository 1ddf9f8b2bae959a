// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

// Clamp forces every field back into its valid range in place, grouped by
// field suffix (_k, _weight, _threshold, and so on) applied directly to
// Settings' typed fields, so a bad YAML value or a settings-API update can
// never leave the pipeline configured outside the range it was validated
// for.
func (s *Settings) Clamp() {
	s.Retrieval.InitialK = clampInt(s.Retrieval.InitialK, 1, 50)
	s.Retrieval.RerankK = clampInt(s.Retrieval.RerankK, 1, 50)
	s.Retrieval.FinalK = clampInt(s.Retrieval.FinalK, 1, 50)
	s.Retrieval.MultiQueryVariants = clampInt(s.Retrieval.MultiQueryVariants, 1, 10)
	s.Retrieval.DenseWeight = clampFloat(s.Retrieval.DenseWeight, 0, 1)
	s.Retrieval.SparseWeight = clampFloat(s.Retrieval.SparseWeight, 0, 1)
	s.Retrieval.RRFK = clampInt(s.Retrieval.RRFK, 1, 100)

	s.Reranking.LLMRerankTopN = clampInt(s.Reranking.LLMRerankTopN, 1, 50)
	s.Reranking.HybridRerankAlpha = clampFloat(s.Reranking.HybridRerankAlpha, 0, 1)
	if preset := s.Reranking.RerankPreset; preset != "" {
		if topN, ok := topNForPreset[preset]; ok {
			s.Reranking.LLMRerankTopN = topN
		} else {
			s.Reranking.RerankPreset = ""
		}
	}

	s.QueryTransform.HydeTemperature = clampFloat(s.QueryTransform.HydeTemperature, 0, 2)
	s.QueryTransform.RewriteTemperature = clampFloat(s.QueryTransform.RewriteTemperature, 0, 2)

	s.Cache.TTLExact = clampInt(s.Cache.TTLExact, 0, 86400)
	s.Cache.TTLSemantic = clampInt(s.Cache.TTLSemantic, 0, 86400)
	s.Cache.SemanticThreshold = clampFloat(s.Cache.SemanticThreshold, 0, 1)
	s.Cache.OverlapThreshold = clampFloat(s.Cache.OverlapThreshold, 0, 1)
	s.Cache.SemanticCandidatesMax = clampInt(s.Cache.SemanticCandidatesMax, 0, 10)

	s.Prefetch.MaxConcurrent = clampInt(s.Prefetch.MaxConcurrent, 1, 20)
	s.Prefetch.WindowSize = clampInt(s.Prefetch.WindowSize, 1, 50)

	s.LLM.Temperature = clampFloat(s.LLM.Temperature, 0, 2)
	s.LLM.TopP = clampFloat(s.LLM.TopP, 0, 1)
	s.LLM.TopK = clampInt(s.LLM.TopK, 1, 200)
	s.LLM.MaxTokens = clampInt(s.LLM.MaxTokens, 1, 32768)

	s.Embedding.BatchSize = clampInt(s.Embedding.BatchSize, 1, 512)
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
