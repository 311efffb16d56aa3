// +build go1.11

package tcpecho

import (
	"net"

	reuse "github.com/zhiqiangxu/go-reuseport"
	"go.uber.org/zap"
)

// NewReusedConnection is like NewConnection except the underlying socket can be reused
func NewReusedConnection(addr string, conf ConnectionConfig) (*Connection, error) {
	rwc, err := reuse.DialWithTimeout("tcp", "", addr, conf.DialTimeout)
	if err != nil {
		Logger().Error("NewReusedConnection Dial", zap.String("addr", addr), zap.Error(err))
		return nil, err
	}

	return newConnection(rwc, addr, conf), nil
}

// GetReusedCon returns the underlying reuse-able socket
func (conn *Connection) GetReusedCon() net.Conn {
	return conn.rwc
}
