// Package cmd implements the command-line interface of dTX. It provides a
// hierarchical command structure for running backends and for acting as a
// frontend against them.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a backend serving local (lstore) and raft replicated (dstore) shards
//   - tx: Runs one transaction per invocation (read, exists, write, merge, delete) and a benchmark
//   - revisions: Lists the protocol revisions of the build and negotiates with a backend
//   - util: Shared utilities for flag parsing and configuration (internal use)
//
// Every flag can also be set through a DTX_ prefixed environment variable or
// a .env file. See dtx -help for a list of all commands.
package cmd
