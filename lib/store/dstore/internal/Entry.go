package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
)

// EntryType defines the possible operations for the state machine.
type EntryType uint8

const (
	EntryTCommit EntryType = iota + 1 // Apply the modifications of a transaction.
	EntryTPurge                       // Forget a committed transaction.
)

func (et EntryType) String() string {
	switch et {
	case EntryTCommit:
		return "Commit"
	case EntryTPurge:
		return "Purge"
	default:
		return fmt.Sprintf("Unknown(%d)", et)
	}
}

// modification flags
const (
	modHasData     = 1 << 0
	modHasExpected = 1 << 1
)

// Entry is a single command in the raft log.
type Entry struct {
	Type EntryType
	Tx   ids.TransactionID
	Mods []datatree.Modification // only for EntryTCommit
}

// Serialize encodes an entry with the format:
//
//	1 byte entry type,
//	N bytes transaction id (ids.AppendTransactionID),
//	4 bytes modification count (big endian),
//	per modification:
//	  1 byte op, 1 byte flags,
//	  4 bytes path length, N bytes path,
//	  8 bytes expected version (if flagged),
//	  4 bytes data length, N bytes data (if flagged)
func (e *Entry) Serialize() []byte {
	size := 1 + 64 + 4
	for _, m := range e.Mods {
		size += 2 + 4 + len(m.Path) + 8 + 4 + len(m.Data)
	}
	out := make([]byte, 0, size)

	out = append(out, byte(e.Type))
	out = ids.AppendTransactionID(out, e.Tx)
	out = binary.BigEndian.AppendUint32(out, uint32(len(e.Mods)))
	for _, m := range e.Mods {
		var flags byte
		if m.Data != nil {
			flags |= modHasData
		}
		if m.ExpectedVersion != nil {
			flags |= modHasExpected
		}
		out = append(out, byte(m.Op), flags)
		out = binary.BigEndian.AppendUint32(out, uint32(len(m.Path)))
		out = append(out, m.Path...)
		if m.ExpectedVersion != nil {
			out = binary.BigEndian.AppendUint64(out, *m.ExpectedVersion)
		}
		if m.Data != nil {
			out = binary.BigEndian.AppendUint32(out, uint32(len(m.Data)))
			out = append(out, m.Data...)
		}
	}
	return out
}

// Deserialize extracts all Entry fields from a byte array.
func (e *Entry) Deserialize(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("data too short for entry")
	}
	e.Type = EntryType(data[0])
	if e.Type != EntryTCommit && e.Type != EntryTPurge {
		return fmt.Errorf("unknown entry type %d", data[0])
	}

	tx, rest, err := ids.ReadTransactionID(data[1:])
	if err != nil {
		return fmt.Errorf("invalid transaction id: %w", err)
	}
	e.Tx = tx

	if len(rest) < 4 {
		return fmt.Errorf("data too short for modification count")
	}
	count := binary.BigEndian.Uint32(rest)
	rest = rest[4:]

	e.Mods = nil
	if count > 0 {
		e.Mods = make([]datatree.Modification, 0, min(int(count), len(rest)/6))
	}
	for i := uint32(0); i < count; i++ {
		if len(rest) < 6 {
			return fmt.Errorf("data too short for modification %d", i)
		}
		m := datatree.Modification{Op: datatree.Op(rest[0])}
		flags := rest[1]
		if flags&^(modHasData|modHasExpected) != 0 {
			return fmt.Errorf("unknown flags %#x in modification %d", flags, i)
		}
		pathLen := int(binary.BigEndian.Uint32(rest[2:6]))
		rest = rest[6:]
		if len(rest) < pathLen {
			return fmt.Errorf("data too short for path of length %d", pathLen)
		}
		m.Path = string(rest[:pathLen])
		rest = rest[pathLen:]

		if flags&modHasExpected != 0 {
			if len(rest) < 8 {
				return fmt.Errorf("data too short for expected version")
			}
			v := binary.BigEndian.Uint64(rest)
			m.ExpectedVersion = &v
			rest = rest[8:]
		}
		if flags&modHasData != 0 {
			if len(rest) < 4 {
				return fmt.Errorf("data too short for data length")
			}
			dataLen := int(binary.BigEndian.Uint32(rest))
			rest = rest[4:]
			if len(rest) < dataLen {
				return fmt.Errorf("data too short for data of length %d", dataLen)
			}
			m.Data = make([]byte, dataLen)
			copy(m.Data, rest[:dataLen])
			rest = rest[dataLen:]
		}
		e.Mods = append(e.Mods, m)
	}
	if len(rest) != 0 {
		return fmt.Errorf("%d trailing bytes after entry", len(rest))
	}
	return nil
}
