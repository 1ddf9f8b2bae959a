// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target
// type. Weaviate's client hands back a dynamic map[string]models.JSONObject;
// this marshal/unmarshal round trip converts it into a strongly-typed Go
// struct whose json tags describe the expected shape.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("unmarshal into target type: %w", err)
	}

	return &result, nil
}

// documentQueryResponse is the shape of a Get{Document{...}} GraphQL query
// against the Document collection, including Weaviate's _additional block
// carrying the opaque distance/certainty similarity metadata.
type documentQueryResponse struct {
	Get struct {
		Document []documentResult `json:"Document"`
	} `json:"Get"`
}

type documentResult struct {
	Content       string `json:"content"`
	Source        string `json:"source"`
	ParentSource  string `json:"parent_source"`
	DataSpace     string `json:"data_space"`
	VersionTag    string `json:"version_tag"`
	VersionNumber *int   `json:"version_number"`
	IsCurrent     *bool  `json:"is_current"`
	IngestedAt    int64  `json:"ingested_at"`
	TTLExpiresAt  int64  `json:"ttl_expires_at"`
	Additional    struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// toDocument converts a raw GraphQL result row into the package's public
// Document type, defaulting pointer-typed optional fields.
func (r documentResult) toDocument() Document {
	d := Document{
		ID:           r.Additional.ID,
		Content:      r.Content,
		Source:       r.Source,
		ParentSource: r.ParentSource,
		DataSpace:    r.DataSpace,
		VersionTag:   r.VersionTag,
		IngestedAt:   r.IngestedAt,
		TTLExpiresAt: r.TTLExpiresAt,
	}
	if r.VersionNumber != nil {
		d.VersionNumber = *r.VersionNumber
	}
	if r.IsCurrent != nil {
		d.IsCurrent = *r.IsCurrent
	}
	return d
}

// score prefers cosine distance (converted to a similarity, 1-distance)
// when present, falling back to certainty; this matches how dense search
// reports results versus how a hybrid/BM25 query reports them.
func (r documentResult) score() float32 {
	switch {
	case r.Additional.Distance != nil:
		return 1 - *r.Additional.Distance
	case r.Additional.Certainty != nil:
		return *r.Additional.Certainty
	default:
		return 0
	}
}

// DocumentProperties is the write-side shape for a Document point, used by
// schema bootstrap and by test fixtures that seed a store.
type DocumentProperties struct {
	Content       string `json:"content"`
	Source        string `json:"source"`
	ParentSource  string `json:"parent_source"`
	DataSpace     string `json:"data_space"`
	VersionTag    string `json:"version_tag"`
	VersionNumber int    `json:"version_number"`
	IsCurrent     bool   `json:"is_current"`
	IngestedAt    int64  `json:"ingested_at"`
	TTLExpiresAt  int64  `json:"ttl_expires_at"`
}

// ToMap converts DocumentProperties to the map[string]interface{} shape
// Weaviate's WithProperties() expects.
func (p *DocumentProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":        p.Content,
		"source":         p.Source,
		"parent_source":  p.ParentSource,
		"data_space":     p.DataSpace,
		"version_tag":    p.VersionTag,
		"version_number": p.VersionNumber,
		"is_current":     p.IsCurrent,
		"ingested_at":    p.IngestedAt,
		"ttl_expires_at": p.TTLExpiresAt,
	}
}
