// Package snapshot implements the Snapshot half of shard transfer
// (spec.md §4.4): a self-describing archive of a shard's segments,
// written through a pluggable storage Backend.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/rand"

	"github.com/pierrec/lz4/v3"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
)

// PointSnapshot is one live point as it's captured into an archive entry
// — the portable (JSON, not raw mmap bytes) representation this
// implementation chose over byte-exact storage/id-tracker dumps, since a
// snapshot crosses process and OS-page-size boundaries and the segment
// rebuild path (optimizer.rebuild) already knows how to reconstruct a
// segment from a point stream.
type PointSnapshot struct {
	ID      segment.PointID
	Version uint64
	Vectors map[string][]float32
	Payload payload.Point
}

// SegmentSnapshot is "one segment per entry" (SPEC_FULL.md §3's
// SnapshotDescriptor): a segment's field declarations, payload schema,
// and every live point.
type SegmentSnapshot struct {
	ID     string
	Fields []segment.VectorFieldConfig
	Schema payload.Schema
	Points []PointSnapshot
}

// Descriptor is SPEC_FULL.md §3's SnapshotDescriptor{Name, CreatedAt,
// Segments, Checksum}.
type Descriptor struct {
	Name      string
	CreatedAt int64 // unix nanos, stamped by the caller (Date.now-style calls are unavailable here)
	Segments  []SegmentSnapshot
	Checksum  string `json:"-"`
}

// BuildDescriptor walks every appendable/optimized segment in holder and
// captures its live points.
func BuildDescriptor(name string, createdAt int64, holder *segment.Holder) (*Descriptor, error) {
	d := &Descriptor{Name: name, CreatedAt: createdAt}
	for id, sr := range holder.All() {
		seg, ok := sr.(*segment.Segment)
		if !ok {
			continue // mid-optimization proxy: its base+write-leg are each reachable on their own
		}
		ss := SegmentSnapshot{ID: id, Fields: seg.FieldConfigs(), Schema: seg.PayloadSchema()}
		err := seg.Points(func(pid segment.PointID, version uint64, vecs map[string][]float32, p payload.Point) error {
			ss.Points = append(ss.Points, PointSnapshot{ID: pid, Version: version, Vectors: vecs, Payload: p})
			return nil
		})
		if err != nil {
			return nil, cmn.NewServiceError(err, "snapshot %s: capture segment %s", name, id)
		}
		d.Segments = append(d.Segments, ss)
	}
	return d, nil
}

// Encode serializes the descriptor as lz4-compressed JSON and stamps its
// checksum (sha256 of the compressed bytes) onto the returned value —
// the bytes a Backend.Put call writes, and what Decode expects back.
func Encode(d *Descriptor) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var compressed bytes.Buffer
	w := lz4.NewWriter(&compressed)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(compressed.Bytes())
	d.Checksum = hex.EncodeToString(sum[:])
	return compressed.Bytes(), nil
}

// Decode reverses Encode and stamps the sha256 of blob onto the returned
// descriptor's Checksum. No stored checksum is compared against it.
func Decode(blob []byte) (*Descriptor, error) {
	sum := sha256.Sum256(blob)
	r := lz4.NewReader(bytes.NewReader(blob))
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: decompress archive")
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: decode descriptor")
	}
	d.Checksum = hex.EncodeToString(sum[:])
	return &d, nil
}

// Restore rebuilds a fresh segment.Holder from a descriptor's captured
// points — the download-and-restore half of spec.md §4.4's Snapshot
// method, step (c).
func Restore(d *Descriptor, rng *rand.Rand) (*segment.Holder, error) {
	holder := segment.NewHolder()
	for _, ss := range d.Segments {
		pidx := restorePayloadIndex(ss.Schema)
		seg, err := segment.NewAppendable(ss.ID, rng, ss.Fields, pidx)
		if err != nil {
			return nil, cmn.NewServiceError(err, "snapshot %s: rebuild segment %s", d.Name, ss.ID)
		}
		for _, pt := range ss.Points {
			if err := seg.Upsert(pt.ID, pt.Version, pt.Vectors, pt.Payload); err != nil {
				return nil, cmn.NewServiceError(err, "snapshot %s: restore point into %s", d.Name, ss.ID)
			}
		}
		holder.Add(ss.ID, seg)
	}
	return holder, nil
}

func restorePayloadIndex(schema payload.Schema) *payload.Index {
	if schema == nil {
		return nil
	}
	idx := payload.NewIndex(payload.NewMemColumnStore())
	for field, kind := range schema {
		idx.CreateFieldIndex(field, kind)
	}
	return idx
}
