// Command bench is the load-generator CLI SPEC_FULL.md names: it upserts
// a configurable number of random points into a single-peer Collection,
// then fires a batch of queries against it and reports throughput and
// latency. Flag parsing is urfave/cli, matching the teacher's cmd/cli
// tool rather than the stdlib flag package used by cmd/node's simpler
// wiring demo.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/vecstore/vecstore/collection"
	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/query"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/stats"
	"github.com/vecstore/vecstore/vstorage"
	"github.com/vecstore/vecstore/wal"
)

func main() {
	app := cli.NewApp()
	app.Name = "bench"
	app.Usage = "load-generate upserts and queries against a single-peer collection"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "data-dir", Usage: "directory for WAL/mmap/payload files (empty: a temp dir)"},
		cli.IntFlag{Name: "dim", Value: 16, Usage: "dimensionality of the demo vector field"},
		cli.IntFlag{Name: "points", Value: 10_000, Usage: "number of points to upsert"},
		cli.IntFlag{Name: "queries", Value: 1_000, Usage: "number of queries to run after loading"},
		cli.IntFlag{Name: "limit", Value: 10, Usage: "per-query result limit"},
		cli.IntFlag{Name: "shards", Value: 4, Usage: "number of shards to spread points across"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	dataDir := c.String("data-dir")
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "vecstore-bench-")
		if err != nil {
			return err
		}
		dataDir = dir
	}
	dim := c.Int("dim")
	numPoints := c.Int("points")
	numQueries := c.Int("queries")
	limit := c.Int("limit")
	numShards := c.Int("shards")

	ctx := context.Background()
	fields := []segment.VectorFieldConfig{
		{Name: "v", Dim: dim, Metric: vstorage.Cosine, HNSW: hnsw.Params{M: 16, M0: 32, EfConstruct: 100}},
	}
	cfg := collection.DefaultConfig(fields)
	coll := collection.New("bench", "bench-0", dataDir)
	if err := coll.ApplyMetaOp(1, 1, collection.CollectionMetaOp{Kind: collection.CreateCollection, Config: &cfg}); err != nil {
		return err
	}

	shardIDs := make([]string, numShards)
	for i := range shardIDs {
		shardIDs[i] = fmt.Sprintf("shard%d", i)
		if _, err := coll.CreateShard(ctx, "", shardIDs[i]); err != nil {
			return err
		}
	}
	coll.SeedRing("", shardIDs)

	rng := rand.New(rand.NewSource(1))
	vectors := make([][]float32, numPoints)

	upsertStart := time.Now()
	for i := 0; i < numPoints; i++ {
		vec := randomVector(rng, dim)
		vectors[i] = vec
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
	upsertElapsed := time.Since(upsertStart)

	queryStart := time.Now()
	for i := 0; i < numQueries; i++ {
		req := query.ShardQueryRequest{
			Query: &query.ScoringQuery{VectorName: "v", Vector: vectors[rng.Intn(numPoints)], Metric: vstorage.Cosine},
			Limit: limit,
			Ef:    64,
		}
		if _, err := coll.Query(ctx, "", req); err != nil {
			return err
		}
	}
	queryElapsed := time.Since(queryStart)

	fmt.Printf("upserted %d points across %d shards in %s (%.0f/s)\n",
		numPoints, numShards, upsertElapsed, float64(numPoints)/upsertElapsed.Seconds())
	fmt.Printf("ran %d queries in %s (%.0f/s, %s/query avg)\n",
		numQueries, queryElapsed, float64(numQueries)/queryElapsed.Seconds(), queryElapsed/time.Duration(numQueries))

	return stats.WriteText(os.Stdout)
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
