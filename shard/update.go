package shard

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/wal"
)

var updateJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// The UpsertRequest/.../DeleteFieldIndexRequest family is the decoded
// body a wal.Record's Payload carries — one struct per spec.md §3
// UpdateOp variant. Encoding them as JSON (rather than msgp, which the
// WAL framing itself already uses) keeps a shard's stored update bodies
// human-inspectable, the same tradeoff payload.Point's column store
// makes.
type UpsertRequest struct {
	ID      segment.PointID
	Version uint64
	Vectors map[string][]float32
	Payload payload.Point
}

type DeleteRequest struct {
	ID segment.PointID
}

type SetPayloadRequest struct {
	ID      segment.PointID
	Payload payload.Point
}

type DeletePayloadRequest struct {
	ID   segment.PointID
	Keys []string
}

type ClearPayloadRequest struct {
	ID segment.PointID
}

type CreateFieldIndexRequest struct {
	Field string
	Kind  payload.FieldKind
}

type DeleteFieldIndexRequest struct {
	Field string
}

// EncodeUpdate is the encode half of the wal.Record.Payload contract:
// Apply(op, EncodeUpdate(req)) round-trips through apply's decode.
func EncodeUpdate(req any) ([]byte, error) {
	return updateJSON.Marshal(req)
}

// apply decodes payloadBytes per op and mutates the shard's segments —
// called both from Apply (live writes) and from wal.Log.Replay (crash
// recovery), which is exactly why every branch below routes through an
// idempotent-under-version or already-idempotent segment operation.
func (s *LocalShard) apply(op wal.Op, payloadBytes []byte) error {
	switch op {
	case wal.UpsertPoints:
		var req UpsertRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode UpsertPoints", s.ID)
		}
		s.mu.RLock()
		activeID := s.activeID
		s.mu.RUnlock()
		return s.holder.UpsertInto(activeID, req.ID, req.Version, req.Vectors, req.Payload)

	case wal.DeletePoints:
		var req DeleteRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode DeletePoints", s.ID)
		}
		s.holder.DeleteEverywhere(req.ID)
		return nil

	case wal.SetPayload:
		var req SetPayloadRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode SetPayload", s.ID)
		}
		return s.withOwningSegment(req.ID, func(seg *segment.Segment) error {
			return seg.SetPayload(req.ID, req.Payload)
		})

	case wal.DeletePayload:
		var req DeletePayloadRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode DeletePayload", s.ID)
		}
		keys := make(map[string]bool, len(req.Keys))
		for _, k := range req.Keys {
			keys[k] = true
		}
		return s.withOwningSegment(req.ID, func(seg *segment.Segment) error {
			return seg.MutatePayload(req.ID, func(p payload.Point) payload.Point {
				out := make(payload.Point, len(p))
				for k, v := range p {
					if !keys[k] {
						out[k] = v
					}
				}
				return out
			})
		})

	case wal.ClearPayload:
		var req ClearPayloadRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode ClearPayload", s.ID)
		}
		return s.withOwningSegment(req.ID, func(seg *segment.Segment) error {
			return seg.MutatePayload(req.ID, func(payload.Point) payload.Point { return payload.Point{} })
		})

	case wal.CreateFieldIndex:
		var req CreateFieldIndexRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode CreateFieldIndex", s.ID)
		}
		if s.pidx != nil {
			s.pidx.CreateFieldIndex(req.Field, req.Kind)
		}
		return nil

	case wal.DeleteFieldIndex:
		var req DeleteFieldIndexRequest
		if err := updateJSON.Unmarshal(payloadBytes, &req); err != nil {
			return cmn.NewServiceError(err, "shard %s: decode DeleteFieldIndex", s.ID)
		}
		if s.pidx != nil {
			s.pidx.DeleteFieldIndex(req.Field)
		}
		return nil

	default:
		return cmn.NewBadRequest("shard %s: unknown update op %d", s.ID, op)
	}
}

// withOwningSegment finds whichever segment currently holds id (spec.md
// §3 SegmentHolder invariant: "every non-deleted external id is present
// in exactly one ... segment") and runs fn against it.
func (s *LocalShard) withOwningSegment(id segment.PointID, fn func(*segment.Segment) error) error {
	for _, sr := range s.holder.All() {
		seg, ok := sr.(*segment.Segment)
		if !ok {
			continue
		}
		if err := fn(seg); err == nil {
			return nil
		} else if !cmn.IsNotFound(err) {
			return err
		}
	}
	return cmn.NewNotFound("shard %s: point not present in any segment", s.ID)
}
