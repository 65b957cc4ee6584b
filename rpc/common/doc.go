// Package common defines the protocol spoken between frontends and backend
// shards: the message envelope, the request/response taxonomy, the downgrade
// engine that re-expresses a message at an older revision, the protocol error
// classes, and the configuration, logging and metrics shared by client and
// server.
//
// Key Components:
//
//   - Header: Embedded in every message. It carries the target identifier
//     (client, history or transaction), the per-target sequence number, the
//     opaque reply-to Address and the revision the message is tagged with.
//
//   - Message: A closed sum type. Every variant is a value type in this
//     package; Kind identifies the variant on the wire and records the
//     revision that introduced it. Responses echo the header of the request
//     they answer, failures carry a Cause.
//
//   - CloneAsVersion: A pure function that returns a copy of a message tagged
//     with another revision. Going down it drops advisory fields the target
//     revision does not know and fails with ErrUnsupportedDowngrade when a
//     variant or a present structural field cannot be expressed. It is safe to
//     call concurrently on the same message.
//
//   - Errors: Sentinel protocol error classes (negotiation, downgrade,
//     sequence violation, stale response, timeout, request failure) built
//     with github.com/cockroachdb/errors, plus DowngradeError and
//     RequestError carrying context.
//
//   - ServerConfig / ClientConfig: Configuration for backend nodes (raft,
//     shards, sequencing window, transport) and frontends (transport, retry
//     budget, identity), with helpers converting to Dragonboat configuration.
//
//   - Logger: A Dragonboat logger.ILogger backed by github.com/rs/zerolog, so
//     raft and protocol logs share one format and one level.
//
//   - Metrics: Lazily created github.com/VictoriaMetrics/metrics counters for
//     requests, retries, stale responses, replayed duplicates and violations.
package common
