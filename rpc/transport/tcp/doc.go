// Package tcp implements TCP socket-based transport for the dTX RPC system.
// It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse and request routing. See the base package
// documentation for the underlying framing.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
//   - applyOptions: Applies the SocketConf and TCPConf settings (no delay,
//     buffer sizes, keep-alive, linger) to both sides of a connection.
//
// The default server buffer size is set to 512 KB, which provides good performance
// for typical workloads, but can be customized for specific use cases.
package tcp
