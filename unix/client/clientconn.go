package client

import (
	"net"

	"github.com/sateffen/tcpecho"
)

// NewConnection is a wrapper for tcpecho.NewConnection, addr is the
// path of the unix domain socket
func NewConnection(addr string, conf tcpecho.ConnectionConfig) (*tcpecho.Connection, error) {
	conf.DialFunc = func(address string, dialConfig tcpecho.DialConfig) (net.Conn, error) {
		return net.DialTimeout("unix", address, dialConfig.DialTimeout)
	}
	return tcpecho.NewConnection(addr, conf)
}
