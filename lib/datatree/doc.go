// Package datatree implements the committed data view of a shard: an ordered
// map from slash-separated paths to versioned nodes.
//
// The tree is backed by github.com/google/btree so that all descendants of a
// path are contiguous, which is what gives Write and Delete their subtree
// semantics:
//
//   - Write replaces the node at a path and drops all of its descendants.
//   - Merge merges data into the node at a path. When both the stored and the
//     new data are JSON objects their keys are merged shallowly, otherwise the
//     new data replaces the old. Descendants are kept.
//   - Delete removes the node at a path and all of its descendants.
//
// Every node carries the version (log index) of the commit that last touched
// it. A Modification may carry an ExpectedVersion precondition; Apply checks
// all preconditions of a batch before mutating anything, so a batch is applied
// completely or not at all.
//
// Thread Safety:
//
//	Tree methods are safe for concurrent use. Apply takes the write lock for
//	the whole batch, reads take the read lock.
package datatree
