package unix

import (
	"net"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/ValentinKolb/dTX/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

func (c *clientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
