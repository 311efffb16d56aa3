package tcpecho

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrConnAlreadyClosed when operating on a closed Connection
	ErrConnAlreadyClosed = errors.New("connection already closed")
)

// Connection defines a tcpecho client connection
// Write/ReadFull may be used concurrently with Close, while RoundTrip
// calls are serialized internally
type Connection struct {
	// immutable
	rwc  net.Conn
	addr string
	conf ConnectionConfig

	reader *Reader
	writer *Writer

	// cancelCtx cancels the connection-level context.
	cancelCtx context.CancelFunc
	// ctx is the corresponding context for cancelCtx
	ctx context.Context

	opMu sync.Mutex // serializes RoundTrip

	mu     sync.Mutex
	closed bool
}

// NewConnection dials addr and constructs a *Connection
func NewConnection(addr string, conf ConnectionConfig) (*Connection, error) {
	var (
		rwc net.Conn
		err error
	)
	if conf.DialFunc != nil {
		rwc, err = conf.DialFunc(addr, conf.dialConfig())
	} else {
		rwc, err = dialTCP(addr, conf.dialConfig())
	}
	if err != nil {
		Logger().Error("NewConnection Dial", zap.String("addr", addr), zap.Error(err))
		return nil, err
	}

	return newConnection(rwc, addr, conf), nil
}

// dialTCP is the DialFunc used when ConnectionConfig.DialFunc is nil
func dialTCP(address string, dialConfig DialConfig) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", address, dialConfig.DialTimeout)
	if err != nil {
		return nil, err
	}

	if dialConfig.RBufSize <= 0 && dialConfig.WBufSize <= 0 {
		return conn, nil
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return conn, nil
	}
	if dialConfig.RBufSize > 0 {
		sockOptErr := tc.SetReadBuffer(dialConfig.RBufSize)
		if sockOptErr != nil {
			Logger().Error("SetReadBuffer", zap.Int("RBufSize", dialConfig.RBufSize), zap.Error(sockOptErr))
		}
	}
	if dialConfig.WBufSize > 0 {
		sockOptErr := tc.SetWriteBuffer(dialConfig.WBufSize)
		if sockOptErr != nil {
			Logger().Error("SetWriteBuffer", zap.Int("WBufSize", dialConfig.WBufSize), zap.Error(sockOptErr))
		}
	}
	return conn, nil
}

func newConnection(rwc net.Conn, addr string, conf ConnectionConfig) *Connection {
	ctx, cancelCtx := context.WithCancel(context.Background())
	c := &Connection{
		rwc: rwc, addr: addr, conf: conf,
		ctx: ctx, cancelCtx: cancelCtx}
	c.reader = NewReaderWithTimeout(rwc, conf.ReadTimeout)
	c.writer = NewWriterWithTimeout(ctx, rwc, conf.WriteTimeout)

	return c
}

// Write blocks until all of bytes is written or an error occurs
func (conn *Connection) Write(bytes []byte) error {
	if conn.isClosed() {
		return ErrConnAlreadyClosed
	}
	_, err := conn.writer.Write(bytes)
	return err
}

// ReadFull blocks until len(bytes) echoed bytes are read
func (conn *Connection) ReadFull(bytes []byte) error {
	if conn.isClosed() {
		return ErrConnAlreadyClosed
	}
	return conn.reader.ReadBytes(bytes)
}

// RoundTrip sends payload and blocks until the same amount of bytes is
// echoed back
func (conn *Connection) RoundTrip(payload []byte) ([]byte, error) {
	conn.opMu.Lock()
	defer conn.opMu.Unlock()

	err := conn.Write(payload)
	if err != nil {
		return nil, err
	}

	echoed := make([]byte, len(payload))
	err = conn.ReadFull(echoed)
	if err != nil {
		return nil, err
	}
	return echoed, nil
}

// RemoteAddr returns the remote network address
func (conn *Connection) RemoteAddr() string {
	return conn.rwc.RemoteAddr().String()
}

// Done returns the done channel of the connection level context
func (conn *Connection) Done() <-chan struct{} {
	return conn.ctx.Done()
}

func (conn *Connection) isClosed() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.closed
}

// Close closes the connection, subsequent calls are no-op
func (conn *Connection) Close() error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return ErrConnAlreadyClosed
	}
	conn.closed = true
	conn.mu.Unlock()

	conn.cancelCtx()
	return conn.rwc.Close()
}
