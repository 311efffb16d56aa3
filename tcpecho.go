package tcpecho

const (
	// DefaultListenAddr is used when ServerBinding.Addr is empty
	DefaultListenAddr = ":8888"
	// DefaultReadBufSize is the buffer size for a single read when
	// ServerBinding.ReadBufSize is not set
	DefaultReadBufSize = 1024
)

// ConnState is the state of a server side connection
type ConnState int32

const (
	// StateOpen means the connection is tracked and serving
	StateOpen ConnState = iota
	// StateClosing means Close was called but the socket is not released yet
	StateClosing
	// StateClosed means the socket is released
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the view of a tracked server side connection, as returned by
// Server.ConnByID. Close kicks the peer and is safe to call more than
// once.
type Conn interface {
	ID() string
	RemoteAddr() string
	State() ConnState
	Close() error
}
