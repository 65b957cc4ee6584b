package store

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the consensus-backed data store of one shard.
// All methods return a *Error (nil on success) so that callers can act on the
// return code.
type IStore interface {
	// Commit atomically applies the modifications of a transaction and returns
	// the log index it was committed at. Committing the same transaction again
	// before it is purged returns the original index without applying anything.
	Commit(tx ids.TransactionID, mods []datatree.Modification) (index uint64, err error)
	// Check validates the modifications of a transaction against the committed
	// state without applying them.
	Check(mods []datatree.Modification) (err error)
	// Purge forgets a committed transaction. Purging an unknown transaction is
	// not an error.
	Purge(tx ids.TransactionID) (err error)
	// Read returns the committed node at path. The boolean return value
	// indicates whether the node exists.
	Read(path string) (node datatree.Node, found bool, err error)
	// GetInfo returns metadata about the store.
	// It is not guaranteed that the information is up-to-date!
	GetInfo() (info Info, err error)
}

// Info describes the state of a store.
type Info struct {
	Nodes     int    // number of nodes in the data tree
	SizeBytes int    // summed size of all paths and data
	Committed int    // committed, not yet purged transactions
	LastIndex uint64 // index of the last applied commit
}

func (i Info) String() string {
	return fmt.Sprintf("nodes=%d size=%dB committed=%d last-index=%d", i.Nodes, i.SizeBytes, i.Committed, i.LastIndex)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation (bad path, bad modification).
	RetCConflict                        // 3: A precondition of the transaction failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}
