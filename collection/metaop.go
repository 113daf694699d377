package collection

import (
	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/hashring"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/stats"
)

// MetaOpKind enumerates spec.md §6's CollectionMetaOp variants.
type MetaOpKind int

const (
	CreateCollection MetaOpKind = iota
	UpdateCollection
	DeleteCollection
	ChangeAliases
	TransferShard
	SetReplicaState
	RemoveReplica
	StartResharding
	CommitReadHashring
	CommitWriteHashring
	FinishResharding
	AbortResharding
)

// TransferAction enumerates spec.md §6's TransferShard sub-actions.
type TransferAction int

const (
	TransferStart TransferAction = iota
	TransferRestart
	TransferAbort
	TransferRecoveryToPartial
	TransferFinish
)

// TransferShardOp carries a TransferShard meta-op's fields.
type TransferShardOp struct {
	Action TransferAction
	From   string
	To     string
	Sync   bool
}

// CollectionMetaOp is the tagged union spec.md §6 names: "Each is
// submitted through consensus; applying an op on a peer is idempotent
// under the same (term, index)." Only the fields relevant to Kind are
// read by ApplyMetaOp.
type CollectionMetaOp struct {
	Kind MetaOpKind

	ShardID  string
	ShardKey string

	Config *Config // CreateCollection, UpdateCollection

	AddAliases    []string // ChangeAliases
	RemoveAliases []string

	Transfer *TransferShardOp // TransferShard

	Peer         string // SetReplicaState, RemoveReplica
	ReplicaState shard.ReplicaState

	Reshard *hashring.ReshardKey // StartResharding
}

// appliedKey is the (term, index) pair a CollectionMetaOp is idempotent
// under (spec.md §6).
type appliedKey struct {
	term, index uint64
}

func (a appliedKey) after(b appliedKey) bool {
	if a.term != b.term {
		return a.term > b.term
	}
	return a.index > b.index
}

// ApplyMetaOp dispatches op, skipping it if (term, index) is not after
// the last applied key — consensus may redeliver an already-applied
// entry, and this must be a no-op the second time (spec.md §6).
func (c *Collection) ApplyMetaOp(term, index uint64, op CollectionMetaOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := appliedKey{term, index}
	if !key.after(c.lastApplied) {
		return nil
	}

	var err error
	switch op.Kind {
	case CreateCollection, UpdateCollection:
		err = c.applyConfig(op)
	case DeleteCollection:
		err = c.applyDelete()
	case ChangeAliases:
		err = c.applyAliases(op)
	case TransferShard:
		err = c.applyTransfer(op)
	case SetReplicaState:
		err = c.applySetReplicaState(op)
	case RemoveReplica:
		err = c.applyRemoveReplica(op)
	case StartResharding:
		err = c.applyStartResharding(op)
	case CommitReadHashring:
		err = c.holder.CommitReadHashring(op.ShardKey)
	case CommitWriteHashring:
		err = c.holder.CommitWriteHashring(op.ShardKey)
	case FinishResharding:
		err = c.holder.FinishResharding(op.ShardKey)
	case AbortResharding:
		err = c.applyAbortResharding(op)
	default:
		err = cmn.NewBadRequest("collection: unknown meta-op kind %d", op.Kind)
	}
	if err != nil {
		return err
	}
	c.lastApplied = key
	return nil
}

func (c *Collection) applyConfig(op CollectionMetaOp) error {
	if op.Config == nil {
		return cmn.NewBadRequest("collection: %v requires a config", op.Kind)
	}
	c.cfg = *op.Config
	return nil
}

func (c *Collection) applyDelete() error {
	c.deleted = true
	return nil
}

func (c *Collection) applyAliases(op CollectionMetaOp) error {
	if c.aliases == nil {
		c.aliases = make(map[string]bool)
	}
	for _, a := range op.RemoveAliases {
		delete(c.aliases, a)
	}
	for _, a := range op.AddAliases {
		c.aliases[a] = true
	}
	return nil
}

func (c *Collection) applySetReplicaState(op CollectionMetaOp) error {
	rs, ok := c.holder.Shard(op.ShardID)
	if !ok {
		return cmn.NewNotFound("collection: shard %q not found", op.ShardID)
	}
	rs.SetReplicaState(op.Peer, op.ReplicaState)
	return nil
}

func (c *Collection) applyRemoveReplica(op CollectionMetaOp) error {
	rs, ok := c.holder.Shard(op.ShardID)
	if !ok {
		return cmn.NewNotFound("collection: shard %q not found", op.ShardID)
	}
	rs.RemoveReplica(op.Peer)
	if rs.IsEmpty() {
		c.holder.RemoveShard(op.ShardID)
		stats.ShardRemoved(c.Name)
	}
	return nil
}

func (c *Collection) applyStartResharding(op CollectionMetaOp) error {
	if op.Reshard == nil {
		return cmn.NewBadRequest("collection: StartResharding requires a ReshardKey")
	}
	_, err := c.holder.StartResharding(*op.Reshard)
	return err
}

func (c *Collection) applyAbortResharding(op CollectionMetaOp) error {
	state, ok := c.holder.ReshardState(op.ShardKey)
	if !ok {
		return cmn.NewNotFound("collection: shard_key %q has no resharding operation in progress", op.ShardKey)
	}
	// The ring's abort guard runs first, so a rejected abort changes
	// nothing. An Up-direction abort then removes the replica the reshard
	// added on Key.PeerID and drops the shard once its replica set is
	// empty (spec.md §4.3 "Abort (Up direction)").
	if err := c.holder.AbortResharding(op.ShardKey); err != nil {
		return err
	}
	if state.Key.Direction == hashring.Up {
		if rs, ok := c.holder.Shard(state.Key.ShardID); ok {
			rs.RemoveReplica(state.Key.PeerID)
			if rs.IsEmpty() {
				c.holder.RemoveShard(state.Key.ShardID)
				stats.ShardRemoved(c.Name)
			}
		}
	}
	return nil
}

func (c *Collection) applyTransfer(op CollectionMetaOp) error {
	if op.Transfer == nil {
		return cmn.NewBadRequest("collection: TransferShard requires a TransferShardOp")
	}
	switch op.Transfer.Action {
	case TransferStart, TransferRestart:
		return c.startTransfer(op.ShardID, *op.Transfer)
	case TransferAbort:
		return c.abortTransfer(op.ShardID, op.Transfer.To)
	case TransferRecoveryToPartial:
		rs, ok := c.holder.Shard(op.ShardID)
		if !ok {
			return cmn.NewNotFound("collection: shard %q not found", op.ShardID)
		}
		rs.SetReplicaState(op.Transfer.To, shard.Partial)
		return nil
	case TransferFinish:
		return c.finishTransfer(op.ShardID, *op.Transfer)
	default:
		return cmn.NewBadRequest("collection: unknown transfer action %d", op.Transfer.Action)
	}
}
