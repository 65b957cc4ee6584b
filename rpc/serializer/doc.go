// Package serializer provides the wire encoding of dTX protocol messages.
// Every message is encoded in the layout of the revision it is tagged with,
// so a frontend talking to an older backend first downgrades the message
// (see common.CloneAsVersion) and then serializes it.
//
// Wire Layout:
//
//	revision u16 | kind u8 | flags u8 | target | sequence | reply-to | payload
//
// The flags byte carries the presence bits of optional payload fields. Bits
// that are not defined for a kind at the encoded revision are rejected on
// decode, which is how a field introduced in a later revision is kept off
// the wire of an older one.
//
// Key Components:
//
//   - IRPCSerializer: Core interface implemented by the binary serializer.
//
//   - binarySerializerImpl: Stateless implementation dispatching through a
//     table indexed by (kind, revision). Revision 1 uses fixed width integers.
//     Revision 2 and later use uvarints and replace a history identifier that
//     already appeared in the same message by a back-reference.
//
//   - Revision: Helper returning the revision tag of an encoded message
//     without decoding it. The server uses it to reply in the revision the
//     client spoke.
//
// Only production revisions can be encoded. The test-only sentinel revision
// exists for downgrade testing and never reaches the wire.
package serializer
