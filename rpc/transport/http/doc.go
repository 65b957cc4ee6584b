// Package http carries dTX messages as HTTP POST bodies. Every request is
// posted to /{shardID} on one of the configured endpoints, picked round
// robin, and the response body is the encoded reply.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Each Send is one
//     POST bound to the caller's context. An abandoned request simply loses
//     its response, there are no late responses over HTTP.
//
//   - httpServerTransport: Implements IRPCServerTransport with a net/http
//     server and a logging middleware.
//
// Use it where only HTTP passes between frontend and backend. The stream
// transports (tcp, unix) are faster and keep one connection per endpoint.
package http
