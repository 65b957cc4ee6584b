package base

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	config            common.ServerConfig
	bufferPool        *sync.Pool
	maxWorkersPerConn int

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	// minimum one worker per connection
	if maxWorkersPerConn < 1 {
		maxWorkersPerConn = 1
	}

	return &serverTransport{
		connector:         connector,
		maxWorkersPerConn: maxWorkersPerConn,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
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
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return errors.Wrap(err, "failed to create listener")
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		listener.Close()
		return nil
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.maxWorkersPerConn)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.isClosed() {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}
		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer conn.Close()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)
	var wg sync.WaitGroup
	var connMutex sync.Mutex

	// handleResponse processes one request in a worker goroutine
	handleResponse := func(shardID, requestID uint64, data []byte) {
		defer func() {
			<-workerSemaphore
			wg.Done()
		}()

		start := time.Now()
		resp := t.handler(shardID, data)
		Logger.Debugf("Processed request for shard %d with requestID %d took %s", shardID, requestID, time.Since(start))

		// Protect writes to the connection with a mutex
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same requestID
		if err := writeFrame(conn, shardID, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	// handleRequest reads one frame and hands it to a worker
	handleRequest := func() error {
		buf := t.bufferPool.Get().([]byte)
		shardID, requestID, data, err := readFrame(conn, buf, t.config.Transport.TCPMaxFrameBytes)
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Blocks if maxWorkersPerConn is reached
		workerSemaphore <- struct{}{}
		wg.Add(1)

		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(shardID, requestID, data)
		}()
		return nil
	}

	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) {
			Logger.Debugf("Connection closed by client")
			break
		}

		if err != nil {
			Logger.Warningf("Error handling request: %v", err)
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
