package query

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/vstorage"
)

// rrfK is the Reciprocal Rank Fusion constant (spec.md GLOSSARY: "RRF —
// score = Σ 1/(k + rank); k=60 by convention").
const rrfK = 60

// Shard is the per-shard capability the coordinator fans a batch out
// to. *shard.LocalShard satisfies it; a transport-backed remote shard
// would issue the equivalent RPC.
type Shard interface {
	Search(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, metric vstorage.Metric, top, ef int) ([]segment.SearchResult, error)
	FilterContext(filter payload.Filter) hnsw.FilterFunc
	Fetch(id segment.PointID) (vecs map[string][]float32, p payload.Point, found bool)
}

func idKey(id segment.PointID) string {
	if id.IsUUID {
		return "u:" + id.UUID.String()
	}
	return fmt.Sprintf("n:%020d", id.Num)
}

func passesThreshold(metric vstorage.Metric, score, threshold float32) bool {
	if vstorage.OrderingFor(metric) == vstorage.SmallBetter {
		return score <= threshold
	}
	return score >= threshold
}

// Run executes a PlannedQuery against shards: it runs the whole batch on
// every shard concurrently (spec.md §4.5 merge contract step 1), merges
// each internal query's per-shard streams (step 2), then evaluates the
// merge plan tree (steps 3-5) to produce the final answer.
func Run(ctx context.Context, shards map[string]Shard, planned *PlannedQuery) ([]ScoredPoint, error) {
	shardIDs := make([]string, 0, len(shards))
	for id := range shards {
		shardIDs = append(shardIDs, id)
	}
	sort.Strings(shardIDs)

	perShardBatch := make(map[string][][]ScoredPoint, len(shards))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, sid := range shardIDs {
		sid, sh := sid, shards[sid]
		g.Go(func() error {
			out, err := searchBatch(gctx, sh, planned.Batch)
			if err != nil {
				return fmt.Errorf("shard %s: %w", sid, err)
			}
			mu.Lock()
			perShardBatch[sid] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 2: transpose [shard][query] -> [query][shard] and merge each
	// internal query's shard streams.
	perQueryMerged := make([][]ScoredPoint, len(planned.Batch))
	for i, creq := range planned.Batch {
		ordering := vstorage.OrderingFor(creq.Metric)
		byShard := make(map[string][]ScoredPoint, len(shardIDs))
		for _, sid := range shardIDs {
			byShard[sid] = perShardBatch[sid][i]
		}
		perQueryMerged[i] = mergeShardLists(ordering, shardIDs, byShard, creq.Top)
	}

	return evaluate(planned.Plan, perQueryMerged), nil
}

func searchBatch(ctx context.Context, sh Shard, batch []CoreSearchRequest) ([][]ScoredPoint, error) {
	out := make([][]ScoredPoint, len(batch))
	for i, creq := range batch {
		var filterFn hnsw.FilterFunc
		if creq.Filter != nil {
			filterFn = sh.FilterContext(*creq.Filter)
		}
		hits, err := sh.Search(ctx, creq.VectorName, creq.Vector, filterFn, creq.Metric, creq.Top, creq.Ef)
		if err != nil {
			return nil, err
		}
		sps := make([]ScoredPoint, 0, len(hits))
		for _, h := range hits {
			if creq.ScoreThreshold != nil && !passesThreshold(creq.Metric, h.Score, *creq.ScoreThreshold) {
				continue
			}
			sp := ScoredPoint{ID: h.ID, Score: h.Score}
			if creq.WithVector || creq.WithPayload {
				if vecs, p, found := sh.Fetch(h.ID); found {
					if creq.WithVector {
						sp.Vectors = vecs
					}
					if creq.WithPayload {
						sp.Payload = p
					}
				}
			}
			sps = append(sps, sp)
		}
		out[i] = sps
	}
	return out, nil
}

// mergeShardLists k-way merges per-shard streams (each already capped to
// limit candidates by the shard's own search), dedups by point id keeping
// the first occurrence in shardIDs order, sorts under ordering with a
// lower-id tie-break, and truncates to limit (spec.md §4.5 step 2).
func mergeShardLists(ordering vstorage.Ordering, shardIDs []string, perShard map[string][]ScoredPoint, limit int) []ScoredPoint {
	seen := make(map[string]bool)
	var out []ScoredPoint
	for _, sid := range shardIDs {
		for _, sp := range perShard[sid] {
			k := idKey(sp.ID)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, sp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return ordering.Better(out[i].Score, out[j].Score)
		}
		return idKey(out[i].ID) < idKey(out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func page(list []ScoredPoint, offset, limit int) []ScoredPoint {
	if offset >= len(list) {
		return nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}

// evaluate walks the merge plan tree (spec.md §4.5 steps 3-5): a leaf
// pages its already-merged internal-query list; Rescore re-scores the
// union of its children against its own vector; Fusion combines its
// children by Reciprocal Rank Fusion.
func evaluate(node *MergeNode, perQueryMerged [][]ScoredPoint) []ScoredPoint {
	switch node.Kind {
	case MergeLeaf:
		return page(perQueryMerged[node.BatchIndex], node.Offset, node.Limit)
	case MergeRescore:
		return evaluateRescore(node, perQueryMerged)
	case MergeFusionRRF:
		return evaluateFusion(node, perQueryMerged)
	default:
		return nil
	}
}

func evaluateRescore(node *MergeNode, perQueryMerged [][]ScoredPoint) []ScoredPoint {
	seen := make(map[string]bool)
	var candidates []ScoredPoint
	for _, child := range node.Children {
		for _, sp := range evaluate(child, perQueryMerged) {
			k := idKey(sp.ID)
			if seen[k] {
				continue
			}
			seen[k] = true
			candidates = append(candidates, sp)
		}
	}

	ordering := vstorage.OrderingFor(node.RescoreMetric)
	rescored := make([]ScoredPoint, 0, len(candidates))
	for _, c := range candidates {
		v, ok := c.Vectors[node.RescoreVectorName]
		if !ok {
			continue // candidate wasn't hydrated with the vector this node rescores by
		}
		c.Score = node.RescoreMetric.Score(node.RescoreVector, v)
		rescored = append(rescored, c)
	}
	sort.SliceStable(rescored, func(i, j int) bool {
		if rescored[i].Score != rescored[j].Score {
			return ordering.Better(rescored[i].Score, rescored[j].Score)
		}
		return idKey(rescored[i].ID) < idKey(rescored[j].ID)
	})
	return page(rescored, node.Offset, node.Limit)
}

func evaluateFusion(node *MergeNode, perQueryMerged [][]ScoredPoint) []ScoredPoint {
	scores := make(map[string]float32)
	points := make(map[string]ScoredPoint)
	for _, child := range node.Children {
		for rank, sp := range evaluate(child, perQueryMerged) {
			k := idKey(sp.ID)
			scores[k] += 1.0 / float32(rrfK+rank+1)
			if _, ok := points[k]; !ok {
				points[k] = sp
			}
		}
	}
	out := make([]ScoredPoint, 0, len(points))
	for k, sp := range points {
		sp.Score = scores[k]
		out = append(out, sp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return idKey(out[i].ID) < idKey(out[j].ID)
	})
	return page(out, node.Offset, node.Limit)
}
