// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prefetch implements C10, the L5 prefetch cache: it watches a
// conversation's query stream, predicts what the user will ask next, and
// warms the L4 embedding cache in the background so the predicted query -
// if it actually arrives - gets its embedding from cache instead of a cold
// embedding call. The L1-L3 result caches are not warmed.
package prefetch

import "time"

// QueryType classifies a query by conversational intent, used to predict
// what kind of question is likely to follow it.
type QueryType int

const (
	QueryTypeClarification QueryType = iota
	QueryTypeElaboration
	QueryTypeExample
	QueryTypeComparison
	QueryTypeProcedure
	QueryTypeDefinition
	QueryTypeFollowUp
	QueryTypeNewTopic
)

func (t QueryType) String() string {
	switch t {
	case QueryTypeClarification:
		return "clarification"
	case QueryTypeElaboration:
		return "elaboration"
	case QueryTypeExample:
		return "example"
	case QueryTypeComparison:
		return "comparison"
	case QueryTypeProcedure:
		return "procedure"
	case QueryTypeDefinition:
		return "definition"
	case QueryTypeFollowUp:
		return "follow_up"
	default:
		return "new_topic"
	}
}

// Priority controls when a queued prediction gets executed: HIGH runs as
// soon as a worker slot opens, MEDIUM only while the pool is under half
// capacity, LOW only while it is nearly idle.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Pattern is one prediction: a classified query type, a confidence score,
// the keywords the prediction was built from, and the queries it predicts.
type Pattern struct {
	QueryType        QueryType
	Confidence       float64
	ContextKeywords  []string
	PredictedQueries []string
	DetectedAt       time.Time
}

// PriorityFor maps a confidence score onto an execution priority:
// >=0.7 high, >=0.4 medium, else low.
func PriorityFor(confidence float64) Priority {
	switch {
	case confidence >= 0.7:
		return PriorityHigh
	case confidence >= 0.4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Task is one predicted query queued for background warming.
type Task struct {
	Query         string
	Pattern       Pattern
	Priority      Priority
	CreatedAt     time.Time
	Executed      bool
	ExecutionTime time.Duration
}

// Metrics summarizes prefetch effectiveness for observability.
type Metrics struct {
	TotalPredictions  uint64
	TotalPrefetches   uint64
	SuccessfulHits    uint64
	FailedPrefetches  uint64
	DroppedOverflow   uint64
	QueueSizes        map[Priority]int
	ActiveTasks       int
	HistorySize       int
}

// HitRate returns the fraction of completed prefetches that were later
// actually requested by the user. Zero prefetches reports a zero rate
// rather than dividing by zero.
func (m Metrics) HitRate() float64 {
	if m.TotalPrefetches == 0 {
		return 0
	}
	return float64(m.SuccessfulHits) / float64(m.TotalPrefetches)
}
