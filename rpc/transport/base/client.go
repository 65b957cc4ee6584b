package base

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	stopCh       chan struct{} // Close signal for the reader goroutine
	requestChans *xsync.MapOf[uint64, chan responseResult]
	connMu       sync.Mutex // Protects the connection itself
	parent       *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex uint64 // Atomic counter for Round Robin
	nextRequestID uint64 // Atomic counter for unique request IDs
	stopping      atomic.Bool
	late          atomic.Pointer[transport.LateResponseFunc]
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector:     connector,
		nextRequestID: 1, // Start from 1
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	t.config = config
	t.stopping.Store(false)

	// Set default value for ConnectionsPerEndpoint
	connectionsPerEP := 1
	if config.Transport.ConnectionsPerEndpoint > 0 {
		connectionsPerEP = config.Transport.ConnectionsPerEndpoint
	}

	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)
	for _, endpoint := range config.Transport.Endpoints {
		// Create multiple connections per endpoint
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				stopCh:       make(chan struct{}),
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			// Establish the initial connection using reconnect
			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)
			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			// Start the response reader
			go clientConn.readResponses()
		}
	}

	if len(connections) == 0 {
		return errors.New("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(ctx context.Context, shardId uint64, req []byte) ([]byte, error) {
	if t.stopping.Load() {
		return nil, transport.ErrClosed
	}
	connection := t.getNextConnection()
	if connection == nil {
		return nil, errors.New("no active connections available")
	}

	// Generate a unique request ID
	requestID := atomic.AddUint64(&t.nextRequestID, 1)

	// Create and register the channel for the response
	respCh := make(chan responseResult, 1)
	connection.requestChans.Store(requestID, respCh)
	defer connection.requestChans.Delete(requestID)

	connection.connMu.Lock()
	conn := connection.conn
	if conn == nil {
		connection.connMu.Unlock()
		return nil, errors.New("connection is closed")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	err := writeFrame(conn, shardId, requestID, req)
	connection.connMu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "write request to %s", connection.endpoint)
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *clientTransport) OnLateResponse(handler transport.LateResponseFunc) {
	t.late.Store(&handler)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}

	// Simple Round Robin algorithm
	var index uint64
	if len(t.connections) > 1 {
		index = atomic.AddUint64(&t.nextConnIndex, 1) % uint64(len(t.connections))
	}
	return t.connections[index]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	for _, c := range t.connections {
		// Signal reader goroutine to stop
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	}

	// Empty the list
	t.connections = nil
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		shardID, requestID, data, err := readFrame(conn, nil, c.parent.config.Transport.TCPMaxFrameBytes)

		// Check if we should stop
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err != nil {
			Logger.Warningf("Error reading from %s: %v", c.endpoint, err)
			c.failPending(err)

			// Try to restore the connection
			if err := c.reconnect(); err != nil {
				Logger.Errorf("Failed to reconnect to %s: %v", c.endpoint, err)
				return
			}
			continue
		}

		if respCh, found := c.requestChans.LoadAndDelete(requestID); found {
			respCh <- responseResult{data: data}
			continue
		}

		// The request was abandoned by its caller
		if late := c.parent.late.Load(); late != nil {
			(*late)(shardID, data)
		} else {
			Logger.Debugf("Dropping response for unknown request ID %d with shard ID %d", requestID, shardID)
		}
	}
}

// failPending fails every request waiting on this connection
func (c *clientConnection) failPending(cause error) {
	c.requestChans.Range(func(id uint64, ch chan responseResult) bool {
		if _, ok := c.requestChans.LoadAndDelete(id); ok {
			ch <- responseResult{err: errors.Wrapf(cause, "connection to %s lost", c.endpoint)}
		}
		return true
	})
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Close the old connection if it exists
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	// Connect to the endpoint
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", c.endpoint)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		conn.Close()
		return errors.Wrapf(err, "failed to upgrade connection to %s", c.endpoint)
	}

	c.conn = conn
	return nil
}
