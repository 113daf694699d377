package transfer

import (
	"context"
	"encoding/json"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/wal"
)

// decodeForForward mirrors LocalShard.apply's own decode switch (see
// shard/update.go), since a proxied write arrives as the same
// (Op, JSON body) pair the WAL stores.
func decodeForForward(op wal.Op, body []byte) (any, error) {
	switch op {
	case wal.UpsertPoints:
		var req shard.UpsertRequest
		err := json.Unmarshal(body, &req)
		return req, err
	case wal.DeletePoints:
		var req shard.DeleteRequest
		err := json.Unmarshal(body, &req)
		return req, err
	case wal.SetPayload:
		var req shard.SetPayloadRequest
		err := json.Unmarshal(body, &req)
		return req, err
	case wal.DeletePayload:
		var req shard.DeletePayloadRequest
		err := json.Unmarshal(body, &req)
		return req, err
	case wal.ClearPayload:
		var req shard.ClearPayloadRequest
		err := json.Unmarshal(body, &req)
		return req, err
	case wal.CreateFieldIndex:
		var req shard.CreateFieldIndexRequest
		err := json.Unmarshal(body, &req)
		return req, err
	case wal.DeleteFieldIndex:
		var req shard.DeleteFieldIndexRequest
		err := json.Unmarshal(body, &req)
		return req, err
	default:
		return nil, cmn.NewBadRequest("transfer: unknown forwarded op %d", op)
	}
}

func applyForwarded(ctx context.Context, to shard.RemoteShard, req any) error {
	switch r := req.(type) {
	case shard.UpsertRequest:
		return to.Upsert(ctx, r.ID, r.Version, r.Vectors, r.Payload)
	case shard.DeleteRequest:
		return to.Delete(ctx, r.ID)
	case shard.SetPayloadRequest:
		return to.SetPayload(ctx, r.ID, r.Payload)
	case shard.DeletePayloadRequest:
		return to.DeletePayload(ctx, r.ID, r.Keys)
	case shard.ClearPayloadRequest:
		return to.ClearPayload(ctx, r.ID)
	case shard.CreateFieldIndexRequest:
		return to.CreateFieldIndex(ctx, r.Field, r.Kind)
	case shard.DeleteFieldIndexRequest:
		return to.DeleteFieldIndex(ctx, r.Field)
	default:
		return cmn.NewBadRequest("transfer: unrecognized forwarded request %T", req)
	}
}
