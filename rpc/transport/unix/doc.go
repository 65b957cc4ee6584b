// Package unix connects frontends and backends running on the same machine
// over Unix domain sockets. It only supplies the connectors, framing, pooling
// and late response handling come from the base package.
//
// The socket file is removed before listening, so a backend restarted after
// a crash can bind the same path again. The default server buffer is 64 KB.
package unix
