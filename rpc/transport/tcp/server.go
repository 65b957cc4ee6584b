package tcp

import (
	"net"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/ValentinKolb/dTX/rpc/transport/base"
	"github.com/cockroachdb/errors"
)

const (
	defaultBufferSize        = 512 * 1024 // 512 KB
	defaultMaxWorkersPerConn = 64
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create TCP socket")
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return applyOptions(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPDefaultServerTransport creates a new TCP server transport with default buffer size
func NewTCPDefaultServerTransport() transport.IRPCServerTransport {
	return NewTCPServerTransport(defaultBufferSize, defaultMaxWorkersPerConn)
}

// NewTCPServerTransport creates a new TCP server transport with specified buffer size
func NewTCPServerTransport(bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, maxWorkersPerConn)
}
