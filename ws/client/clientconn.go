package client

import (
	"github.com/sateffen/tcpecho"
)

// NewConnection is a wrapper for tcpecho.NewConnection
func NewConnection(addr string, conf tcpecho.ConnectionConfig) (*tcpecho.Connection, error) {
	conf.DialFunc = DialConn
	return tcpecho.NewConnection(addr, conf)
}
