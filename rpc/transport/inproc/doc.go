// Package inproc implements a transport that connects frontends and backends
// living in the same process. Requests are handed to the server handler on a
// goroutine, no bytes leave the process.
//
// Servers register under their configured endpoint name in a process wide
// registry. A client resolves its endpoints on Connect.
//
// The client accepts a Fault function that can drop requests, drop responses
// or delay requests. Combined with short attempt timeouts this reproduces
// retransmissions, duplicate deliveries and late responses deterministically,
// which is how the sequencing layer is tested.
package inproc
