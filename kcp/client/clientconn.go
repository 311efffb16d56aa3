package client

import (
	"fmt"
	"net"

	"github.com/sateffen/tcpecho"
	"github.com/xtaci/kcp-go/v5"
)

var emptyDialConfig = tcpecho.DialConfig{}

// NewConnection is a wrapper for tcpecho.NewConnection
func NewConnection(addr string, conf tcpecho.ConnectionConfig) (*tcpecho.Connection, error) {
	conf.DialFunc = func(address string, dialConfig tcpecho.DialConfig) (net.Conn, error) {
		if dialConfig != emptyDialConfig {
			return nil, fmt.Errorf("DialConfig not supported for kcp")
		}
		return kcp.Dial(address)
	}
	return tcpecho.NewConnection(addr, conf)
}
