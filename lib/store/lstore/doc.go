// Package lstore implements a local, in-memory, single-node store based on the
// store.IStore interface. Commands are applied directly to a store.ShardState;
// data is not persisted between process restarts.
//
// Implementation Details:
//
//   - Commit Index: The store maintains an atomic counter that is incremented
//     for every commit attempt. It stands in for the raft log index of the
//     distributed store, so committed nodes carry strictly increasing versions.
//
//   - Idempotent Commits: Committing an already committed transaction returns
//     the original index until the transaction is purged.
//
// Thread Safety:
//
//	All operations are safe for concurrent use. Commits are serialized by the
//	shard state, reads only take the data tree's read lock.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	index, err := s.Commit(tx, []datatree.Modification{datatree.Write("/a", []byte("1"))})
//	node, found, err := s.Read("/a")
package lstore
