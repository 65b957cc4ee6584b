package serializer

import "github.com/ValentinKolb/dTX/rpc/common"

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize encodes a Message at the revision it is tagged with.
	// Messages tagged with a non-production revision, or carrying fields that
	// do not exist at their revision, are rejected.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes a byte array produced by Serialize. The returned
	// Message is tagged with the revision read from the wire.
	Deserialize(b []byte) (common.Message, error)
}
