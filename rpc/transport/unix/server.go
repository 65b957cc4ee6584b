package unix

import (
	"net"
	"os"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/ValentinKolb/dTX/rpc/transport/base"
	"github.com/cockroachdb/errors"
)

const (
	defaultBufferSize        = 64 * 1024 // 64 KB
	defaultMaxWorkersPerConn = 64
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Transport.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, errors.Wrap(err, "failed to remove existing socket")
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Unix socket")
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(net.Conn, common.ServerConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixDefaultServerTransport creates a new Unix server transport with default buffer size
func NewUnixDefaultServerTransport() transport.IRPCServerTransport {
	return NewUnixServerTransport(defaultBufferSize, defaultMaxWorkersPerConn)
}

// NewUnixServerTransport creates a new Unix server transport with specified buffer size
func NewUnixServerTransport(bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, maxWorkersPerConn)
}
