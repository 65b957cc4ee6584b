// Package abi enumerates the wire-format revisions ("ABI revisions") of the
// transaction access protocol and negotiates the revision two peers use.
//
// Revisions are totally ordered. A node supports a fixed, ordered set of
// revisions per build (see Supported). During a rolling upgrade an old and a new
// node meet; Negotiate picks the newest revision both understand, ignoring any
// revision one side does not know, so a newer node always degrades to a format
// the older node can read instead of failing.
//
// Key Components:
//
//   - Revision: ordered revision value with String/ParseRevision helpers.
//
//   - Negotiate / NegotiateAdvertised: revision agreement between two peers,
//     either from two full revision sets or from a single advertised maximum.
//
//   - RevisionTestFuture: a sentinel newer than any released revision. It exists
//     so tests can drive the degrade-gracefully path; production code never
//     emits it as an outgoing tag and the serializer refuses to encode it.
package abi
