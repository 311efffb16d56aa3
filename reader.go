package tcpecho

import (
	"io"
	"net"
	"time"
)

// Reader read data from socket
type Reader struct {
	conn    net.Conn
	timeout int
}

const (
	// ReadNoTimeout will never timeout
	ReadNoTimeout = -1
)

// NewReader creates a Reader instance
func NewReader(conn net.Conn) *Reader {
	return NewReaderWithTimeout(conn, ReadNoTimeout)
}

// NewReaderWithTimeout allows specify timeout
func NewReaderWithTimeout(conn net.Conn, timeout int) *Reader {
	return &Reader{conn: conn, timeout: timeout}
}

// SetReadTimeout allows modify timeout for read
func (r *Reader) SetReadTimeout(timeout int) {
	r.timeout = timeout
}

// ReadChunk reads whatever is available into bytes, up to len(bytes).
// n can be positive even when err is not nil.
func (r *Reader) ReadChunk(bytes []byte) (n int, err error) {
	timeout := r.timeout
	if timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(time.Duration(timeout) * time.Second))
	}
	return r.conn.Read(bytes)
}

// ReadBytes blocks until len(bytes) is read
func (r *Reader) ReadBytes(bytes []byte) error {
	timeout := r.timeout
	if timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(time.Duration(timeout) * time.Second))
	}
	_, err := io.ReadFull(r.conn, bytes)
	if err != nil {
		return err
	}

	return nil
}
