package query

import "github.com/vecstore/vecstore/cmn"

// Plan translates a ShardQueryRequest into a PlannedQuery: a flat batch
// of CoreSearchRequests plus the merge plan tree that recombines them
// (spec.md §4.5).
func Plan(req ShardQueryRequest) (*PlannedQuery, error) {
	var batch []CoreSearchRequest
	root, err := planNode(req, &batch, false)
	if err != nil {
		return nil, err
	}
	return &PlannedQuery{Batch: batch, Plan: root}, nil
}

func planNode(req ShardQueryRequest, batch *[]CoreSearchRequest, forceVector bool) (*MergeNode, error) {
	if req.Query == nil {
		return nil, cmn.NewBadRequest("query: scroll-only (no scoring query) requests are not planned by this package")
	}
	if req.Limit <= 0 {
		return nil, cmn.NewBadRequest("query: limit must be positive")
	}

	if req.Query.Fusion {
		if len(req.Prefetches) == 0 {
			return nil, cmn.NewBadRequest("query: fusion query requires at least one prefetch")
		}
		children := make([]*MergeNode, 0, len(req.Prefetches))
		for _, pf := range req.Prefetches {
			child, err := planNode(pf, batch, forceVector)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &MergeNode{Kind: MergeFusionRRF, Children: children, Offset: req.Offset, Limit: req.Limit}, nil
	}

	if len(req.Prefetches) == 0 {
		idx := len(*batch)
		*batch = append(*batch, CoreSearchRequest{
			VectorName:     req.Query.VectorName,
			Vector:         req.Query.Vector,
			Metric:         req.Query.Metric,
			Filter:         req.Filter,
			Top:            req.Offset + req.Limit,
			Ef:             req.Ef,
			WithVector:     req.WithVector || forceVector,
			WithPayload:    req.WithPayload,
			ScoreThreshold: req.ScoreThreshold,
		})
		return &MergeNode{Kind: MergeLeaf, BatchIndex: idx, Offset: req.Offset, Limit: req.Limit}, nil
	}

	// Rescore: candidates come from the prefetches, re-scored here
	// against this node's own vector. Force every descendant leaf to
	// fetch vectors so the candidates carry what Rescore needs.
	children := make([]*MergeNode, 0, len(req.Prefetches))
	for _, pf := range req.Prefetches {
		child, err := planNode(pf, batch, true)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &MergeNode{
		Kind:              MergeRescore,
		Children:          children,
		RescoreVectorName: req.Query.VectorName,
		RescoreVector:     req.Query.Vector,
		RescoreMetric:     req.Query.Metric,
		Offset:            req.Offset,
		Limit:             req.Limit,
	}, nil
}
