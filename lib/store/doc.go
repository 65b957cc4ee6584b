// Package store provides the consensus-facing storage layer of a shard: the
// place where committed transactions end up.
//
// Key Components:
//
//   - IStore Interface: The abstraction the backend uses to commit, check and
//     purge transactions and to read committed data. Implementations differ only
//     in how commands reach the shard state (directly or through raft).
//
//   - ShardState: The replicated state itself. It owns the committed data tree
//     (lib/datatree) and a table of committed, not yet purged transactions which
//     makes Commit idempotent per transaction. Snapshots are zstd compressed.
//
//   - Error System: A structured error reporting mechanism using typed return
//     codes (RetCode) and descriptive messages, so callers can tell a failed
//     precondition (RetCConflict) from an internal failure.
//
// Implementations:
//
//   - Local Store (lstore): Applies commands directly to an in-memory
//     ShardState. Suitable for single-node deployments and tests.
//     Available in the "github.com/ValentinKolb/dTX/lib/store/lstore" package.
//
//   - Distributed Store (dstore): Proposes commands to a Dragonboat raft shard
//     whose state machine applies them to a ShardState on every replica.
//     Available in the "github.com/ValentinKolb/dTX/lib/store/dstore" package.
package store
