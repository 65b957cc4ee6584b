// Package base implements the stream transports of dTX independent of the
// socket type. The tcp and unix packages only add connectors.
//
// Every message travels in a frame:
//
//	shardID u64 | requestID u64 | length u32 | payload
//
// The request ID correlates a response with the Send call waiting for it. It
// is a transport detail and unrelated to the sequence numbers of the
// protocol, a retransmitted request gets a new request ID.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Dial, listen and tune a connection.
//
//   - clientTransport: A pool of connections per endpoint, used round robin.
//     Pending calls live in an xsync.MapOf keyed by request ID. A broken
//     connection fails its pending calls and is redialed by its reader,
//     nothing is retransmitted here.
//
//   - serverTransport: Accepts connections, reads frames and hands them to the
//     registered handler, bounded by a per connection worker limit. Buffers
//     are reused through a sync.Pool.
//
// Late Responses:
//
//	When a Send gives up (context done) its request ID is dropped. A response
//	arriving afterwards is passed to the transport.LateResponseFunc so the
//	sequencing layer can still match it or count it as stale.
//
// Thread Safety:
//
//	All public methods are safe for concurrent use. Writes to one connection
//	are serialized, the server handles every connection in its own goroutine.
package base
