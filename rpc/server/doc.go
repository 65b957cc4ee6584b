// Package server implements the backend side of the transaction access protocol.
// It decodes requests, orders them per target, runs them against the store of
// their shard and answers in the revision the request was sent in.
//
// The package focuses on:
//   - Sequencing: every history and transaction is a target with its own
//     sequence numbers. Requests are applied strictly in order, early ones
//     wait in a bounded reorder buffer, retries inside the retry window get
//     the remembered response replayed instead of being applied twice
//   - Revision handling: requests of a revision the node does not accept fail
//     with CauseUnsupportedRevision, responses are downgraded to the revision
//     of their request
//   - Transaction lifecycle: open, ready, can-commit, pre-committed, committed
//     or aborted, kept in memory until the frontend purges them
//
// Key Components:
//
//   - IRPCServerAdapter: runs one decoded request against a store.IStore.
//     NewTxServerAdapter implements the client, history and transaction
//     requests.
//
//   - sequenceGate: per shard ordering, duplicate replay and peer trust.
//     Purged histories and transactions stay closed in a bounded cache.
//
//   - RPCServer: creates the shards (lstore or dstore) and serves them over
//     any transport.IRPCServerTransport.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocal},
//	  },
//	  Member:     "backend-1",
//	  Revisions:  abi.Supported(),
//	  Sequencing: common.DefaultSequencingConfig(),
//	}
//	config.Transport.Endpoint = "0.0.0.0:8080"
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Transaction state lives on the backend node that received the requests,
// only commits are replicated. A frontend must therefore send all requests of
// a shard to the same node.
//
// Thread Safety:
//
//	The server handles concurrent requests across connections. Requests of
//	different targets run in parallel, requests of one target one at a time.
package server
