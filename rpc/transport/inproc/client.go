package inproc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
)

// ErrNoServer is returned if no server listens on an endpoint.
var ErrNoServer = errors.New("inproc: no server listening")

// FaultAction describes how a single request is disturbed.
type FaultAction struct {
	// DropRequest loses the request before it reaches the server.
	DropRequest bool
	// DropResponse lets the server handle the request but loses its response.
	DropResponse bool
	// Delay holds the request back before it is handled.
	Delay time.Duration
}

// Fault decides the fate of the n-th request sent by a client (n starts at 1).
type Fault func(n uint64, shardId uint64, req []byte) FaultAction

type clientTransport struct {
	mu      sync.RWMutex
	servers []*serverTransport
	next    uint64
	sent    uint64
	fault   Fault
	late    atomic.Pointer[transport.LateResponseFunc]
	closed  atomic.Bool
	pending sync.WaitGroup
}

// NewClientTransport creates a client for servers of the same process.
// fault may be nil.
func NewClientTransport(fault Fault) transport.IRPCClientTransport {
	return &clientTransport{fault: fault}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}
	servers := make([]*serverTransport, 0, len(config.Transport.Endpoints))
	for _, endpoint := range config.Transport.Endpoints {
		s, ok := endpoints.Load(endpoint)
		if !ok {
			return errors.Wrapf(ErrNoServer, "connect to %q", endpoint)
		}
		servers = append(servers, s)
	}
	t.mu.Lock()
	t.servers = servers
	t.mu.Unlock()
	t.closed.Store(false)
	return nil
}

func (t *clientTransport) Send(ctx context.Context, shardId uint64, req []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	server, err := t.pick()
	if err != nil {
		return nil, err
	}

	var action FaultAction
	n := atomic.AddUint64(&t.sent, 1)
	if t.fault != nil {
		action = t.fault(n, shardId, req)
	}
	if action.DropRequest {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	// the request is copied, the caller may reuse its buffer
	data := append([]byte(nil), req...)
	result := make(chan []byte)
	abandoned := make(chan struct{})

	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		if action.Delay > 0 {
			time.Sleep(action.Delay)
		}
		select {
		case <-server.done:
			return
		default:
		}
		resp := server.handler(shardId, data)
		if action.DropResponse {
			return
		}
		select {
		case result <- resp:
		case <-abandoned:
			if late := t.late.Load(); late != nil {
				(*late)(shardId, resp)
			}
		}
	}()

	select {
	case resp := <-result:
		return resp, nil
	case <-ctx.Done():
		close(abandoned)
		// the response may have been ready at the same instant
		select {
		case resp := <-result:
			return resp, nil
		default:
		}
		return nil, ctx.Err()
	case <-server.done:
		close(abandoned)
		return nil, errors.Wrap(ErrNoServer, "server closed")
	}
}

func (t *clientTransport) OnLateResponse(handler transport.LateResponseFunc) {
	t.late.Store(&handler)
}

// Close waits for requests still being handled.
func (t *clientTransport) Close() error {
	t.closed.Store(true)
	t.pending.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// pick selects the next server via round robin
func (t *clientTransport) pick() (*serverTransport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.servers) == 0 {
		return nil, errors.New("not connected")
	}
	return t.servers[atomic.AddUint64(&t.next, 1)%uint64(len(t.servers))], nil
}
