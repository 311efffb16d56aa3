package server

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sateffen/tcpecho"
	"go.uber.org/zap"
)

const (
	backlog = 128
)

// OverlayNetwork impl the overlay network for ws
func OverlayNetwork(l net.Listener) net.Listener {
	return newOverlay(l)
}

type echoOverWS struct {
	l          net.Listener
	httpServer *http.Server
	acceptCh   chan *websocket.Conn
	ctx        context.Context
	cancelFunc context.CancelFunc
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	Subprotocols: []string{"null"},
}

func newOverlay(l net.Listener) (o *echoOverWS) {

	mux := &http.ServeMux{}
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			tcpecho.Logger().Error("upgrader.Upgrade", zap.Error(err))
			return
		}

		select {
		case o.acceptCh <- c:
		case <-o.ctx.Done():
		}

	})

	httpServer := &http.Server{Handler: mux}
	ctx, cancelFunc := context.WithCancel(context.Background())
	o = &echoOverWS{
		l:          l,
		httpServer: httpServer,
		acceptCh:   make(chan *websocket.Conn, backlog),
		ctx:        ctx,
		cancelFunc: cancelFunc,
	}

	go func() {
		err := httpServer.Serve(l)
		tcpecho.Logger().Error("httpServer.Serve", zap.Error(err))
	}()

	return
}

func (o *echoOverWS) Accept() (conn net.Conn, err error) {
	select {
	case c := <-o.acceptCh:
		conn = NewConn(c)
		return
	case <-o.ctx.Done():
		err = o.ctx.Err()
		return
	}
}

func (o *echoOverWS) Close() error {
	o.cancelFunc()
	return o.l.Close()
}

func (o *echoOverWS) Addr() (addr net.Addr) {
	return o.l.Addr()
}
