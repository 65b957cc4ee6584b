package ids

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// The fixed layout below is used where identifiers are persisted (raft log
// entries). Wire messages use the revision-dependent layout of the serializer.
//
//	string : u16 length | bytes
//	client : member | type | generation u64
//	history: client | history u64 | cookie u32
//	tx     : history | tx u64

var ErrTruncated = errors.New("ids: truncated identifier")

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

// AppendClientID appends the fixed encoding of c to b.
func AppendClientID(b []byte, c ClientID) []byte {
	b = appendString(b, c.Frontend.Member)
	b = appendString(b, c.Frontend.Type)
	return binary.BigEndian.AppendUint64(b, c.Generation)
}

// AppendHistoryID appends the fixed encoding of h to b.
func AppendHistoryID(b []byte, h HistoryID) []byte {
	b = AppendClientID(b, h.Client)
	b = binary.BigEndian.AppendUint64(b, h.History)
	return binary.BigEndian.AppendUint32(b, h.Cookie)
}

// AppendTransactionID appends the fixed encoding of t to b.
func AppendTransactionID(b []byte, t TransactionID) []byte {
	b = AppendHistoryID(b, t.History)
	return binary.BigEndian.AppendUint64(b, t.Tx)
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return "", nil, ErrTruncated
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}

// ReadClientID decodes a client identifier and returns the remaining bytes.
func ReadClientID(b []byte) (ClientID, []byte, error) {
	var c ClientID
	var err error
	if c.Frontend.Member, b, err = readString(b); err != nil {
		return ClientID{}, nil, err
	}
	if c.Frontend.Type, b, err = readString(b); err != nil {
		return ClientID{}, nil, err
	}
	if len(b) < 8 {
		return ClientID{}, nil, ErrTruncated
	}
	c.Generation = binary.BigEndian.Uint64(b)
	return c, b[8:], nil
}

// ReadHistoryID decodes a history identifier and returns the remaining bytes.
func ReadHistoryID(b []byte) (HistoryID, []byte, error) {
	c, b, err := ReadClientID(b)
	if err != nil {
		return HistoryID{}, nil, err
	}
	if len(b) < 12 {
		return HistoryID{}, nil, ErrTruncated
	}
	return HistoryID{
		Client:  c,
		History: binary.BigEndian.Uint64(b[:8]),
		Cookie:  binary.BigEndian.Uint32(b[8:12]),
	}, b[12:], nil
}

// ReadTransactionID decodes a transaction identifier and returns the remaining bytes.
func ReadTransactionID(b []byte) (TransactionID, []byte, error) {
	h, b, err := ReadHistoryID(b)
	if err != nil {
		return TransactionID{}, nil, err
	}
	if len(b) < 8 {
		return TransactionID{}, nil, ErrTruncated
	}
	return TransactionID{History: h, Tx: binary.BigEndian.Uint64(b[:8])}, b[8:], nil
}
