package tcpecho

import (
	"net"
	"time"

	"github.com/go-kit/kit/metrics"
)

// ListenFunc is the type for ServerBinding.ListenFunc
type ListenFunc func(network, address string) (net.Listener, error)

// OverlayNetwork is the type for ServerBinding.OverlayNetwork
type OverlayNetwork func(net.Listener) net.Listener

// ServerBinding contains binding infos
type ServerBinding struct {
	Addr                string
	ReadBufSize         int // bytes for a single read, default DefaultReadBufSize
	MaxConns            int // max tracked connections, 0 for no limit
	DefaultReadTimeout  int // in seconds, 0 for no timeout
	DefaultWriteTimeout int // in seconds, 0 for no timeout
	WBufSize            int // socket write buffer
	RBufSize            int // socket read buffer
	CloseRateLimit      int // max closes per second, 0 for no limit
	CounterMetric       metrics.Counter
	ConnGauge           metrics.Gauge
	// OnAccepted is called after a connection is tracked, from the
	// accept loop, so it must not block
	OnAccepted     func(id string, remoteAddr string)
	ListenFunc     ListenFunc
	OverlayNetwork OverlayNetwork
}

// DialConfig is config for dial behavior
type DialConfig struct {
	DialTimeout time.Duration
	WBufSize    int
	RBufSize    int
}

// DialFunc is the type for ConnectionConfig.DialFunc
type DialFunc func(address string, dialConfig DialConfig) (net.Conn, error)

// ConnectionConfig is conf for Connection
type ConnectionConfig struct {
	WriteTimeout int // in seconds, 0 for no timeout
	ReadTimeout  int // in seconds, 0 for no timeout
	DialTimeout  time.Duration
	WBufSize     int
	RBufSize     int
	DialFunc     DialFunc
}

func (conf *ConnectionConfig) dialConfig() DialConfig {
	return DialConfig{DialTimeout: conf.DialTimeout, WBufSize: conf.WBufSize, RBufSize: conf.RBufSize}
}
