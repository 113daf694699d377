// Package fname contains on-disk filename and directory-layout constants,
// grounded on the teacher's cmn/fname package (same role — a single place
// naming every persisted file — rewritten for the segment/shard/snapshot
// layout this module actually writes).
/*
 * Copyright (c) 2018-2022, NVIDIA CORPORATION. All rights reserved.
 */
package fname

const (
	// per-segment directory contents (spec.md §3 Segment)
	SegmentMeta    = ".segment.meta"  // metadata JSON: id, immutability, version
	VectorStorage  = "vectors.bin"    // dense/multi/sparse vector storage
	IDTracker      = "ids.bin"        // external-id <-> internal-offset mapping
	PayloadColumns = "payload"        // directory: one file per indexed field
	HNSWGraph      = "hnsw.graph"     // persisted link-lists + entry points

	// per-shard directory contents
	WALDir       = "wal"          // append-only operation log segments
	SegmentsDir  = "segments"     // one subdirectory per segment id
	ShardMeta    = ".shard.meta"  // replica set / reshard-key bookkeeping

	// snapshot archive layout (spec.md §6): <collection>/<shard_id>/<snapshot_name>
	SnapshotDescriptor = "descriptor.json"
)
