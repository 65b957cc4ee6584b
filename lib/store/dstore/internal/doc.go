// Package internal provides the raft log entry format and the query types of
// the dstore state machine.
//
// Entry Format:
//
//   - 1 byte: entry type (Commit, Purge)
//   - N bytes: transaction id (see ids.AppendTransactionID)
//   - 4 bytes: modification count (uint32, big endian)
//   - per modification: op, presence flags, path, optional expected version,
//     optional data (lengths are uint32, big endian)
//
// Queries are executed locally on the state machine and are never serialized.
package internal
