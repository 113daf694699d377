// Package collection implements Collection, the composition root
// spec.md §2 names: "A Collection owns a ShardHolder which owns many
// ShardReplicaSets." It wires hashring routing, shard write/read paths,
// query planning/merge, and shard transfer into the two control-flow
// paragraphs spec.md §2 describes for queries and writes.
package collection

import (
	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/optimizer"
	"github.com/vecstore/vecstore/segment"
)

// Config is a collection's configuration snapshot: cmn.Config's
// process-wide option enumeration (spec.md §6), specialized per
// collection with the one thing cmn can't know about — its declared
// vector fields (cmn sits below payload/segment in the import graph and
// can't reference segment.VectorFieldConfig itself).
type Config struct {
	cmn.Config
	VectorFields []segment.VectorFieldConfig
}

// DefaultConfig mirrors the teacher's config-defaulting style: named
// constants a caller starts from and overrides selectively.
func DefaultConfig(fields []segment.VectorFieldConfig) Config {
	return Config{Config: cmn.DefaultConfig(), VectorFields: fields}
}

// thresholds projects the optimizer-relevant fields of cmn.Config into
// the optimizer package's own Thresholds shape.
func (c Config) thresholds() optimizer.Thresholds {
	return optimizer.Thresholds{
		DeletedThreshold:         c.DeletedThreshold,
		DefaultSegmentNumber:     c.DefaultSegmentNumber,
		MemmapThreshold:          c.MemmapThreshold,
		IndexingThreshold:        c.IndexingThreshold,
		PayloadIndexingThreshold: c.PayloadIndexingThreshold,
	}
}
