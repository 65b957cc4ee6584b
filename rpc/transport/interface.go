package transport

import (
	"context"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/cockroachdb/errors"
)

// ErrClosed is returned by Send after Close was called.
var ErrClosed = errors.New("transport: closed")

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes a shardId and a request as parameters and returns a response
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and listens for incoming requests.
	// It blocks until the listener fails or Close is called.
	Listen(config common.ServerConfig) error
	// Close stops accepting new connections. Listen returns nil afterwards.
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// LateResponseFunc receives responses that arrived after the Send they
// belong to returned, typically because its context expired.
type LateResponseFunc func(shardId uint64, resp []byte)

// IRPCClientTransport is the interface for the RPC client transport.
// A transport delivers one request and waits for one response. It never
// retries on its own, retransmission is the job of the caller.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// It returns when the response arrived or ctx is done.
	Send(ctx context.Context, shardId uint64, req []byte) (resp []byte, err error)
	// OnLateResponse registers the handler for abandoned responses.
	// Transports that cannot observe late responses ignore it.
	OnLateResponse(handler LateResponseFunc)
	// Close closes the transport connection
	Close() error
}
