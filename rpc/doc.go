// Package rpc provides the wire layer of the transaction access protocol. It
// connects frontends, which issue sequenced requests, with the backend shards
// that apply them.
//
// The package is organized into several subpackages:
//
//   - common: The message taxonomy, the version downgrade rules, configuration
//     structures, error classes, metrics and logging.
//
//   - serializer: The per revision binary encoding of every message.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP and an in-process transport for tests).
//
//   - client: The frontend side: revision negotiation, request sequencing with
//     retries, and the History and Transaction handles.
//
//   - server: The backend side: the per target sequence gate and the
//     transaction lifecycle of every shard.
package rpc
