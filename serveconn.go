package tcpecho

import (
	"context"
	"io"
	"net"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
)

// A serveconn represents the server side of a tcpecho connection.
// all fields are immutable except state and untrack
type serveconn struct {
	// server is the server on which the connection arrived.
	server *Server

	// cancelCtx cancels the connection-level context.
	cancelCtx context.CancelFunc
	// ctx is the corresponding context for cancelCtx
	ctx context.Context

	// id is unique per accepted connection, only used for logs
	id  string
	idx int

	state int32 // ConnState, accessed atomically

	// rwc is the underlying network connection.
	// It is usually of type *net.TCPConn
	rwc net.Conn

	reader *Reader // used in serve
	writer *Writer // used in serve

	// modified by Server
	untrack     uint32 // only the first call to untrack actually do it, subsequent calls should wait for untrackedCh
	untrackedCh chan struct{}
}

// ID returns the connection id
func (sc *serveconn) ID() string {
	return sc.id
}

// State returns the current ConnState
func (sc *serveconn) State() ConnState {
	return ConnState(atomic.LoadInt32(&sc.state))
}

func (sc *serveconn) RemoteAddr() string {
	return sc.rwc.RemoteAddr().String()
}

// Serve a new connection, echoing every chunk read back to the peer
// before the next read.
func (sc *serveconn) serve() {

	defer func() {
		// connection level panic
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			Logger().Error("connection panic", zap.String("remote", sc.RemoteAddr()), zap.Any("err", err), zap.ByteString("stack", buf))
		}
		sc.Close()
	}()

	binding := sc.server.bindings[sc.idx]
	var readBufSize int
	if binding.ReadBufSize > 0 {
		readBufSize = binding.ReadBufSize
	} else {
		readBufSize = DefaultReadBufSize
	}
	sc.reader = NewReaderWithTimeout(sc.rwc, binding.DefaultReadTimeout)
	sc.writer = NewWriterWithTimeout(sc.ctx, sc.rwc, binding.DefaultWriteTimeout)

	buf := make([]byte, readBufSize)
	for {
		n, err := sc.reader.ReadChunk(buf)
		if n > 0 {
			Logger().Debug("received", zap.String("id", sc.id), zap.ByteString("msg", buf[:n]))
			_, werr := sc.writer.Write(buf[:n])
			if werr != nil {
				Logger().Error("echo write", zap.String("id", sc.id), zap.String("remote", sc.RemoteAddr()), zap.Error(werr))
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				Logger().Debug("read", zap.String("id", sc.id), zap.Error(err))
			}
			return
		}

		select {
		case <-sc.ctx.Done():
			return
		default:
		}
	}

}

// Close closes the connection, the registry bookkeeping happens exactly
// once no matter how many times it is called.
func (sc *serveconn) Close() error {

	if limiter := sc.server.closeRateLimiter[sc.idx]; limiter != nil {
		limiter.Take()
	}

	atomic.CompareAndSwapInt32(&sc.state, int32(StateOpen), int32(StateClosing))

	ok, ch := sc.server.untrack(sc)
	if !ok {
		<-ch
	}
	return sc.closeUntracked()

}

func (sc *serveconn) closeUntracked() error {

	if !atomic.CompareAndSwapInt32(&sc.state, int32(StateClosing), int32(StateClosed)) {
		// some other caller released the socket already
		return nil
	}

	err := sc.rwc.Close()
	sc.cancelCtx()
	return err
}
