package inproc

import (
	"sync"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// endpoints holds every listening server of the process by endpoint name
var endpoints = xsync.NewMapOf[string, *serverTransport]()

// ErrAddressInUse is returned by Listen if another server owns the endpoint.
var ErrAddressInUse = errors.New("inproc: address already in use")

type serverTransport struct {
	handler  transport.ServerHandleFunc
	endpoint string
	done     chan struct{}
	once     sync.Once
}

// NewServerTransport creates a server transport reachable from clients of the
// same process under config.Transport.Endpoint.
func NewServerTransport() transport.IRPCServerTransport {
	return &serverTransport{done: make(chan struct{})}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}
	t.endpoint = config.Transport.Endpoint
	if _, loaded := endpoints.LoadOrStore(t.endpoint, t); loaded {
		return errors.Wrapf(ErrAddressInUse, "listen on %q", t.endpoint)
	}
	Logger.Infof("Starting inproc server on %s", t.endpoint)
	<-t.done
	return nil
}

func (t *serverTransport) Close() error {
	t.once.Do(func() {
		close(t.done)
		if t.endpoint != "" {
			endpoints.Compute(t.endpoint, func(old *serverTransport, loaded bool) (*serverTransport, bool) {
				// only remove the entry if it is ours
				return old, !loaded || old == t
			})
		}
	})
	return nil
}

// Listening reports whether a server is registered under endpoint.
func Listening(endpoint string) bool {
	_, ok := endpoints.Load(endpoint)
	return ok
}
