package tcp

import (
	"net"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/ValentinKolb/dTX/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return applyOptions(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
