package server

import (
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/lib/store"
	"github.com/ValentinKolb/dTX/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// Requests of one target arrive in sequence order, one at a time.
	// Failures are returned as failure messages, never as Go errors.
	Handle(req common.Message, store store.IStore) (resp common.Message)
}

// ITargetCloser retires sequencing targets whose backend state was released.
// Requests to a retired target fail with CauseClosed, retries of requests it
// already answered are still replayed.
type ITargetCloser interface {
	// Close retires single targets
	Close(keys ...ids.Key)
	// CloseHistory retires every transaction target of a history
	CloseHistory(history ids.HistoryID)
}
