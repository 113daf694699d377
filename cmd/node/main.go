// Command node wires a single-peer Collection end to end: it opens one
// shard, upserts a handful of random points, runs a vector query against
// them, and prints the result plus a Prometheus metrics dump — the
// example process SPEC_FULL.md names, grounded on the teacher's small
// cmd/ tools (flag.FlagSet + nlog, no server loop).
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/vecstore/vecstore/collection"
	"github.com/vecstore/vecstore/cmn/nlog"
	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/query"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/stats"
	"github.com/vecstore/vecstore/vstorage"
	"github.com/vecstore/vecstore/wal"
)

var flags struct {
	dataDir    string
	dim        int
	numPoints  int
	queryLimit int
}

func init() {
	flag.StringVar(&flags.dataDir, "data_dir", "", "directory for WAL/mmap/payload files (empty: a temp dir)")
	flag.IntVar(&flags.dim, "dim", 8, "dimensionality of the demo vector field")
	flag.IntVar(&flags.numPoints, "points", 200, "number of random points to upsert")
	flag.IntVar(&flags.queryLimit, "limit", 5, "query result limit")
}

func main() {
	flag.Parse()
	nlog.InitFlags(flag.CommandLine)
	nlog.SetTitle("node")

	if flags.dataDir == "" {
		dir, err := os.MkdirTemp("", "vecstore-node-")
		if err != nil {
			nlog.Errorf("mkdir temp data dir: %v", err)
			os.Exit(1)
		}
		flags.dataDir = dir
	}
	if err := run(); err != nil {
		nlog.Errorf("node: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	fields := []segment.VectorFieldConfig{
		{Name: "v", Dim: flags.dim, Metric: vstorage.Cosine, HNSW: hnsw.Params{M: 16, M0: 32, EfConstruct: 100}},
	}
	cfg := collection.DefaultConfig(fields)
	coll := collection.New("demo", "node-0", flags.dataDir)

	op := collection.CollectionMetaOp{Kind: collection.CreateCollection, Config: &cfg}
	if err := coll.ApplyMetaOp(1, 1, op); err != nil {
		return err
	}
	if _, err := coll.CreateShard(ctx, "", "shard0"); err != nil {
		return err
	}
	coll.SeedRing("", []string{"shard0"})

	rng := rand.New(rand.NewSource(1))
	var last []float32
	for i := 0; i < flags.numPoints; i++ {
		vec := randomVector(rng, flags.dim)
		last = vec
		body, err := shard.EncodeUpdate(shard.UpsertRequest{
			ID:      segment.NumPointID(uint64(i)),
			Version: 1,
			Vectors: map[string][]float32{"v": vec},
			Payload: payload.Point{"i": i},
		})
		if err != nil {
			return err
		}
		if err := coll.Write("", segment.NumPointID(uint64(i)), wal.UpsertPoints, body); err != nil {
			return err
		}
	}
	nlog.Infof("node: upserted %d points into shard0", flags.numPoints)

	req := query.ShardQueryRequest{
		Query: &query.ScoringQuery{VectorName: "v", Vector: last, Metric: vstorage.Cosine},
		Limit: flags.queryLimit,
		Ef:    64,
	}
	results, err := coll.Query(ctx, "", req)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("id=%v score=%.4f\n", r.ID, r.Score)
	}

	return stats.WriteText(os.Stdout)
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
