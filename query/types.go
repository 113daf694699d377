// Package query implements PlannedQuery: translating a nested
// ShardQueryRequest into a flat batch of per-shard CoreSearchRequests
// plus a merge-plan tree, and the coordinator-side merge that turns
// per-shard result streams back into one ordered answer (spec.md §4.5).
package query

import (
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/vstorage"
)

// ScoredPoint is one result, hydrated with whatever the request asked
// for (with-vector, with-payload).
type ScoredPoint struct {
	ID      segment.PointID
	Score   float32
	Vectors map[string][]float32
	Payload payload.Point
}

// ScoringQuery is the root-or-prefetch scoring stage of a
// ShardQueryRequest: either a plain vector search, or an RRF fusion over
// this request's own prefetches.
type ScoringQuery struct {
	// Vector search fields. VectorName names the collection's declared
	// vector field to search, and also the field hydrated/rescored for
	// a node with children (spec.md §4.5 "Rescore{query, limit}").
	VectorName string
	Vector     []float32
	Metric     vstorage.Metric

	// Fusion, when true, makes this node an RRF fuse-over-children node
	// instead of a vector search leaf. Vector/VectorName/Metric are
	// ignored.
	Fusion bool
}

// ShardQueryRequest is the external request shape spec.md §6 names:
// "optional scoring-query (vector | fusion:rrf), optional filter,
// optional params, optional prefetches (recursive), offset, limit,
// with-vector, with-payload, score-threshold".
type ShardQueryRequest struct {
	Query          *ScoringQuery
	Filter         *payload.Filter
	Ef             int
	Prefetches     []ShardQueryRequest
	Offset         int
	Limit          int
	WithVector     bool
	WithPayload    bool
	ScoreThreshold *float32
}

// CoreSearchRequest is one leaf of the flattened batch PlannedQuery
// hands to every target shard (spec.md §4.5: "a flat batch of
// CoreSearchRequests").
type CoreSearchRequest struct {
	VectorName     string
	Vector         []float32
	Metric         vstorage.Metric
	Filter         *payload.Filter
	Top            int // offset+limit worth of candidates to ask each shard for
	Ef             int
	WithVector     bool
	WithPayload    bool
	ScoreThreshold *float32
}

// MergeKind distinguishes the three node shapes the merge plan tree can
// take (spec.md §4.5: "internal nodes describe how to fuse children
// (Rescore{query, limit} or Fusion(Rrf))"; leaves reference batch
// indices).
type MergeKind int

const (
	MergeLeaf MergeKind = iota
	MergeRescore
	MergeFusionRRF
)

// MergeNode is one node of the merge plan tree. A leaf carries a
// BatchIndex into PlannedQuery.Batch; an internal node carries Children
// and describes how to combine their already-merged result lists.
type MergeNode struct {
	Kind       MergeKind
	BatchIndex int // valid when Kind == MergeLeaf
	Children   []*MergeNode

	// Rescore-only: the vector field to re-score candidates against.
	RescoreVectorName string
	RescoreVector     []float32
	RescoreMetric     vstorage.Metric

	Offset int
	Limit  int
}

// PlannedQuery is the output of Plan: a flat batch to run on every
// target shard, and the tree that turns the per-shard results back into
// one ordered list.
type PlannedQuery struct {
	Batch []CoreSearchRequest
	Plan  *MergeNode
}
