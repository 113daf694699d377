package optimizer

import (
	"errors"
	"math/rand"

	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
)

// ErrStopped is returned by rebuild when the owning task's cooperative
// cancellation flag was observed set mid-rebuild (spec.md §4.2: "the
// cooperative cancellation flag is checked at every batch boundary").
var ErrStopped = errors.New("optimizer: task stopped")

// rebuild constructs a fresh appendable segment id, copying every live
// point from sources in order. It is the rebuild primitive shared by
// Vacuum (one source, compacts out tombstones) and Merge (several sources,
// folded into one); Indexing promotes its segment in place and does not
// call it.
func rebuild(id string, rng *rand.Rand, fields []segment.VectorFieldConfig, pidx *payload.Index, sources []*segment.Segment, stopped func() bool) (*segment.Segment, error) {
	fresh, err := segment.NewAppendable(id, rng, fields, pidx)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		err := src.Points(func(pid segment.PointID, version uint64, vecs map[string][]float32, p payload.Point) error {
			if stopped != nil && stopped() {
				return ErrStopped
			}
			return fresh.Upsert(pid, version, vecs, p)
		})
		if err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// freshPayloadIndex builds a new RAM-backed payload index carrying the
// same declared fields as schema, for a rebuilt segment. A new segment
// never shares a payload.Index instance with its source: offsets are
// local to each segment, and an index keyed by offset would alias
// unrelated points across two segments that both assign offset 0.
func freshPayloadIndex(schema payload.Schema) *payload.Index {
	if schema == nil {
		return nil
	}
	idx := payload.NewIndex(payload.NewMemColumnStore())
	for field, kind := range schema {
		idx.CreateFieldIndex(field, kind)
	}
	return idx
}
