// Package wal implements the per-shard write-ahead log: an append-only
// sequence of Records whose replay feeds UpdateOps back through the same
// idempotent-version path as live writes (spec.md §4.7).
package wal

import (
	"github.com/tinylib/msgp/msgp"
)

// Op names the mutation a Record carries (spec.md §3 UpdateOp, minus the
// read-only members — a WAL only ever records mutations).
type Op uint8

const (
	UpsertPoints Op = iota
	DeletePoints
	SetPayload
	DeletePayload
	ClearPayload
	CreateFieldIndex
	DeleteFieldIndex
)

func (o Op) String() string {
	switch o {
	case UpsertPoints:
		return "upsert_points"
	case DeletePoints:
		return "delete_points"
	case SetPayload:
		return "set_payload"
	case DeletePayload:
		return "delete_payload"
	case ClearPayload:
		return "clear_payload"
	case CreateFieldIndex:
		return "create_field_index"
	case DeleteFieldIndex:
		return "delete_field_index"
	default:
		return "unknown"
	}
}

// Record is one WAL entry. Payload is the op-specific body, already
// encoded by the caller (shard package, via shard.EncodeUpdate) — the log itself only needs
// Seq to support Replay(from) and Op for observability; it never
// interprets Payload.
type Record struct {
	Seq     uint64
	Op      Op
	Payload []byte
}

// MarshalMsg implements msgp.Marshaler by hand, encoding Record as a
// 3-element msgpack array: grounded on the shape msgp-generated code
// produces for a struct with no omitempty fields, written directly
// against the runtime helpers instead of via `go generate`.
func (r Record) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendUint64(b, r.Seq)
	b = msgp.AppendUint8(b, uint8(r.Op))
	b = msgp.AppendBytes(b, r.Payload)
	return b, nil
}

// UnmarshalMsg implements msgp.Unmarshaler, the inverse of MarshalMsg.
func (r *Record) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if sz != 3 {
		return b, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	r.Seq, b, err = msgp.ReadUint64Bytes(b)
	if err != nil {
		return b, err
	}
	var op uint8
	op, b, err = msgp.ReadUint8Bytes(b)
	if err != nil {
		return b, err
	}
	r.Op = Op(op)
	r.Payload, b, err = msgp.ReadBytesBytes(b, nil)
	return b, err
}

// Msgsize is the usual msgp companion method, giving callers an
// allocation hint before MarshalMsg.
func (r Record) Msgsize() int {
	return msgp.ArrayHeaderSize + msgp.Uint64Size + msgp.Uint8Size + msgp.BytesPrefixSize + len(r.Payload)
}
