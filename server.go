package tcpecho

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zhiqiangxu/util"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Server defines parameters for running a tcpecho server.
type Server struct {
	// one registry for each listening address
	bindings []ServerBinding

	// manages below two
	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	doneChan  chan struct{}
	doneOnce  sync.Once

	activeConn       []*registry
	closeRateLimiter []ratelimit.Limiter

	wg sync.WaitGroup // wait group for connection goroutines
}

// NewServer creates a server
func NewServer(bindings []ServerBinding) *Server {
	activeConn := make([]*registry, len(bindings))
	closeRateLimiter := make([]ratelimit.Limiter, len(bindings))
	for idx := range bindings {
		if bindings[idx].Addr == "" {
			bindings[idx].Addr = DefaultListenAddr
		}
		activeConn[idx] = newRegistry()
		if bindings[idx].CloseRateLimit > 0 {
			closeRateLimiter[idx] = ratelimit.New(bindings[idx].CloseRateLimit)
		}
	}
	return &Server{
		bindings:         bindings,
		listeners:        make(map[net.Listener]struct{}),
		doneChan:         make(chan struct{}),
		activeConn:       activeConn,
		closeRateLimiter: closeRateLimiter}
}

// ListenAndServe binds all addresses then blocks serving until
// Shutdown, in which case it returns ErrServerClosed.
// A failure to bind any address closes the already bound listeners
// and is returned right away.
func (srv *Server) ListenAndServe() error {

	listeners := make([]net.Listener, 0, len(srv.bindings))
	for _, binding := range srv.bindings {
		var (
			ln  net.Listener
			err error
		)
		if binding.ListenFunc != nil {
			ln, err = binding.ListenFunc("tcp", binding.Addr)
		} else {
			ln, err = net.Listen("tcp", binding.Addr)
		}
		if err != nil {
			Logger().Error("ListenAndServe", zap.String("addr", binding.Addr), zap.Error(err))
			for _, bound := range listeners {
				bound.Close()
			}
			return err
		}

		if binding.OverlayNetwork != nil {
			ln = binding.OverlayNetwork(ln)
		}
		Logger().Info("listening", zap.String("addr", binding.Addr))
		listeners = append(listeners, ln)
	}

	var (
		errMu    sync.Mutex
		serveErr error
		wg       sync.WaitGroup
	)
	for idx, ln := range listeners {
		idx, ln := idx, ln
		util.GoFunc(&wg, func() {
			err := srv.serve(ln, idx)
			errMu.Lock()
			if serveErr == nil {
				serveErr = err
			}
			errMu.Unlock()
		})
	}
	wg.Wait()

	return serveErr
}

// ErrServerClosed is returned by the Server's serve, ListenAndServe,
// methods after a call to Shutdown
var ErrServerClosed = errors.New("tcpecho: Server closed")

var defaultAcceptTimeout = 5 * time.Second

// serve accepts incoming connections on the Listener l, creating a
// new service goroutine for each. The service goroutines simply echo
// whatever they read back to the peer.
//
// serve always returns a non-nil error. After Shutdown, the
// returned error is ErrServerClosed.
func (srv *Server) serve(l net.Listener, idx int) error {

	defer l.Close()
	var tempDelay time.Duration // how long to sleep on accept failure

	srv.trackListener(l, true)
	defer srv.trackListener(l, false)

	binding := srv.bindings[idx]
	serveCtx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	for {
		switch tl := l.(type) {
		case *net.TCPListener:
			tl.SetDeadline(time.Now().Add(defaultAcceptTimeout))
		case *net.UnixListener:
			tl.SetDeadline(time.Now().Add(defaultAcceptTimeout))
		}
		rw, e := l.Accept()
		if e != nil {
			select {
			case <-srv.doneChan:
				return ErrServerClosed
			default:
			}
			if opError, ok := e.(*net.OpError); ok && opError.Timeout() {
				// don't log the scheduled timeout
				continue
			}
			if ne, ok := e.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				Logger().Error("Accept", zap.Error(e), zap.Duration("retry in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return e
		}
		tempDelay = 0

		srv.applySockOpts(rw, &binding)

		sc := srv.newServeconn(serveCtx, rw, idx)
		if !srv.track(sc) {
			Logger().Warn("connection limit reached", zap.String("addr", binding.Addr), zap.Int("max", binding.MaxConns), zap.String("remote", sc.RemoteAddr()))
			sc.cancelCtx()
			rw.Close()
			continue
		}

		util.GoFunc(&srv.wg, sc.serve)
	}
}

// sockOptConn is implemented by connections that expose socket buffer
// knobs, *net.TCPConn among them.
type sockOptConn interface {
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
}

func (srv *Server) applySockOpts(rw net.Conn, binding *ServerBinding) {
	if binding.RBufSize <= 0 && binding.WBufSize <= 0 {
		return
	}

	oc, ok := rw.(sockOptConn)
	if !ok {
		return
	}
	if binding.RBufSize > 0 {
		err := oc.SetReadBuffer(binding.RBufSize)
		if err != nil {
			Logger().Error("SetReadBuffer", zap.Int("RBufSize", binding.RBufSize), zap.Error(err))
		}
	}
	if binding.WBufSize > 0 {
		err := oc.SetWriteBuffer(binding.WBufSize)
		if err != nil {
			Logger().Error("SetWriteBuffer", zap.Int("WBufSize", binding.WBufSize), zap.Error(err))
		}
	}
}

func (srv *Server) trackListener(ln net.Listener, add bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if add {
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
}

// Create new connection from rwc.
func (srv *Server) newServeconn(serveCtx context.Context, rwc net.Conn, idx int) *serveconn {
	sc := &serveconn{
		server:      srv,
		id:          uuid.NewString(),
		idx:         idx,
		rwc:         rwc,
		untrackedCh: make(chan struct{})}
	sc.ctx, sc.cancelCtx = context.WithCancel(serveCtx)
	return sc
}

// track registers sc, it reports false when the binding's MaxConns is
// reached.
func (srv *Server) track(sc *serveconn) bool {
	binding := &srv.bindings[sc.idx]
	if !srv.activeConn[sc.idx].add(sc, binding.MaxConns) {
		return false
	}

	if binding.CounterMetric != nil {
		binding.CounterMetric.With("event", "accept").Add(1)
	}
	if binding.ConnGauge != nil {
		binding.ConnGauge.Set(float64(srv.activeConn[sc.idx].size()))
	}
	if binding.OnAccepted != nil {
		binding.OnAccepted(sc.ID(), sc.RemoteAddr())
	}
	Logger().Debug("accepted a connection", zap.String("id", sc.ID()), zap.String("remote", sc.RemoteAddr()))
	return true
}

// untrack removes sc from the registry, only the first call for a given
// sc actually does it, subsequent calls wait on the returned channel.
func (srv *Server) untrack(sc *serveconn) (bool, <-chan struct{}) {

	locked := atomic.CompareAndSwapUint32(&sc.untrack, 0, 1)
	if !locked {
		return false, sc.untrackedCh
	}

	left, removed := srv.activeConn[sc.idx].remove(sc)
	if removed {
		binding := &srv.bindings[sc.idx]
		if binding.CounterMetric != nil {
			binding.CounterMetric.With("event", "close").Add(1)
		}
		if binding.ConnGauge != nil {
			binding.ConnGauge.Set(float64(left))
		}
		Logger().Info("closed a connection", zap.String("id", sc.ID()), zap.String("remote", sc.RemoteAddr()), zap.Int("left", left))
	}
	close(sc.untrackedCh)

	return true, sc.untrackedCh
}

// OpenConns returns the number of tracked connections for bindings[idx]
func (srv *Server) OpenConns(idx int) int {
	return srv.activeConn[idx].size()
}

// ConnByID returns the tracked connection with the given id for
// bindings[idx], nil when no such connection is tracked.
func (srv *Server) ConnByID(idx int, id string) Conn {
	sc := srv.activeConn[idx].connByID(id)
	if sc == nil {
		return nil
	}
	return sc
}

var shutdownPollInterval = 500 * time.Millisecond

// Shutdown closes all listeners, force closes the tracked connections
// and waits for the registries to drain.
func (srv *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	srv.mu.Lock()
	lnerr := srv.closeListenersLocked()
	srv.mu.Unlock()

	srv.doneOnce.Do(func() {
		close(srv.doneChan)
	})

	srv.closeConns()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if srv.waitConnDone() {
			return lnerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (srv *Server) closeConns() {
	for idx := range srv.bindings {
		var conns []*serveconn
		srv.activeConn[idx].rangeConns(func(sc *serveconn) bool {
			conns = append(conns, sc)
			return true
		})
		for _, sc := range conns {
			sc.Close()
		}
	}
}

func (srv *Server) waitConnDone() bool {
	for idx := range srv.bindings {
		if srv.activeConn[idx].size() != 0 {
			return false
		}
	}

	return true
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(srv.listeners, ln)
	}
	return err
}
