// Package dstore implements a distributed, fault-tolerant shard store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent
// implementation of the store.IStore interface.
//
// Architecture:
//
//   - Store Client: Implements store.IStore. Commit and Purge are encoded as
//     internal.Entry values and proposed via SyncPropose; Read and Check are
//     linearizable SyncRead queries, GetInfo uses StaleRead.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine (TxStateMachine)
//     that applies entries to a store.ShardState on every replica. The raft log
//     index of a commit becomes the version of every node it touches.
//
//   - Communication Protocol: Defined in the internal package.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a
//	short delay, up to a fixed number of attempts. Failed entries carry their
//	store.RetCode as result value and the message as result data.
//
// Snapshotting and Recovery:
//
//	Snapshots are fuzzy: the shard state is written zstd compressed without
//	pausing updates. Recovery loads the snapshot and replays later log entries.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMachineFactory(), shardConfig)
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
package dstore
