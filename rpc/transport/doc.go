// Package transport defines the interfaces and abstractions for moving encoded
// dTX messages between frontends and backends. It provides a common contract
// that all transport implementations must fulfill, enabling protocol-agnostic
// communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting shard-based request routing
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets, in-process)
//
// A transport is deliberately dumb: it does not retry, reorder or inspect
// messages. Retransmission with stable sequence numbers is done by the
// client's sequencing layer, duplicate detection by the server's sequence gate.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
//   - LateResponseFunc: Callback for responses whose request was already abandoned.
package transport
