package test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sateffen/tcpecho"
	"github.com/zhiqiangxu/util"
	"gotest.tools/v3/assert"
)

const (
	addr          = "0.0.0.0:8081"
	isolationAddr = "0.0.0.0:8082"
	bindAddr      = "0.0.0.0:8083"
	maxConnsAddr  = "0.0.0.0:8084"
	shutdownAddr  = "0.0.0.0:8085"
	reuseAddr     = "0.0.0.0:8086"
)

func serveEcho(ctx context.Context, wg *sync.WaitGroup, server *tcpecho.Server) {
	util.GoFunc(wg, func() {
		util.RunWithCancel(ctx, func() {
			server.ListenAndServe()
		}, func() {
			server.Shutdown(nil)
		})
	})
	time.Sleep(time.Millisecond * 300)
}

func testConf() tcpecho.ConnectionConfig {
	return tcpecho.ConnectionConfig{DialTimeout: time.Second * 5, ReadTimeout: 10, WriteTimeout: 10}
}

func TestEcho(t *testing.T) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: addr}})
	serveEcho(ctx, &wg, server)

	conn, err := tcpecho.NewConnection(addr, testConf())
	assert.NilError(t, err)

	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("hello echo"),
		bytes.Repeat([]byte("0123456789"), 1000), // crosses the server read buffer
	}
	for _, payload := range payloads {
		echoed, err := conn.RoundTrip(payload)
		assert.NilError(t, err)
		assert.Assert(t, bytes.Equal(echoed, payload))
	}

	conn.Close()

	util.TryUntilSuccess(func() bool {
		return server.OpenConns(0) == 0
	}, time.Millisecond*50)

	cancelFunc()
	wg.Wait()
}

func TestConnectionIsolation(t *testing.T) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: isolationAddr}})
	serveEcho(ctx, &wg, server)

	connA, err := tcpecho.NewConnection(isolationAddr, testConf())
	assert.NilError(t, err)
	connB, err := tcpecho.NewConnection(isolationAddr, testConf())
	assert.NilError(t, err)

	// writes interleaved across connections, each peer gets its own bytes back
	assert.NilError(t, connA.Write([]byte("from A")))
	assert.NilError(t, connB.Write([]byte("from B")))

	gotB := make([]byte, 6)
	assert.NilError(t, connB.ReadFull(gotB))
	assert.Assert(t, bytes.Equal(gotB, []byte("from B")))

	gotA := make([]byte, 6)
	assert.NilError(t, connA.ReadFull(gotA))
	assert.Assert(t, bytes.Equal(gotA, []byte("from A")))

	// closing one connection must not affect the other
	connA.Close()
	echoed, err := connB.RoundTrip([]byte("still here"))
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(echoed, []byte("still here")))

	connB.Close()
	cancelFunc()
	wg.Wait()
}

func loadConns() int {
	if env := os.Getenv("ECHO_TEST_CONNS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			return n
		}
	}
	return 512
}

func TestManyConns(t *testing.T) {
	n := loadConns()

	ctx, cancelFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: addr}})
	serveEcho(ctx, &wg, server)

	var (
		clientWg sync.WaitGroup
		failures int64
	)
	startTime := time.Now()
	for i := 0; i < n; i++ {
		i := i
		util.GoFunc(&clientWg, func() {
			conn, err := tcpecho.NewConnection(addr, testConf())
			if err != nil {
				atomic.AddInt64(&failures, 1)
				return
			}
			defer conn.Close()

			payload := []byte(fmt.Sprintf("I am the %d one", i))
			echoed, err := conn.RoundTrip(payload)
			if err != nil || !bytes.Equal(echoed, payload) {
				atomic.AddInt64(&failures, 1)
			}
		})
	}
	clientWg.Wait()
	t.Log(n, "connections took", time.Since(startTime))

	assert.Equal(t, atomic.LoadInt64(&failures), int64(0))

	util.TryUntilSuccess(func() bool {
		return server.OpenConns(0) == 0
	}, time.Millisecond*50)

	cancelFunc()
	wg.Wait()
}

func TestBindFailure(t *testing.T) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: bindAddr}})
	serveEcho(ctx, &wg, server)

	// the address is taken, binding again must fail right away
	again := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: bindAddr}})
	err := again.ListenAndServe()
	assert.Assert(t, err != nil)

	// the first listener is unaffected
	conn, err := tcpecho.NewConnection(bindAddr, testConf())
	assert.NilError(t, err)
	echoed, err := conn.RoundTrip([]byte("still serving"))
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(echoed, []byte("still serving")))
	conn.Close()

	cancelFunc()
	wg.Wait()
}

func TestMaxConns(t *testing.T) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: maxConnsAddr, MaxConns: 2}})
	serveEcho(ctx, &wg, server)

	conn1, err := tcpecho.NewConnection(maxConnsAddr, testConf())
	assert.NilError(t, err)
	defer conn1.Close()
	conn2, err := tcpecho.NewConnection(maxConnsAddr, testConf())
	assert.NilError(t, err)
	defer conn2.Close()

	util.TryUntilSuccess(func() bool {
		return server.OpenConns(0) == 2
	}, time.Millisecond*10)

	// the third connection is accepted then dropped without being tracked
	conn3, err := tcpecho.NewConnection(maxConnsAddr, testConf())
	assert.NilError(t, err)
	defer conn3.Close()

	_, err = conn3.RoundTrip([]byte("one too many"))
	assert.Assert(t, err != nil)
	assert.Equal(t, server.OpenConns(0), 2)

	// tracked connections keep echoing
	echoed, err := conn1.RoundTrip([]byte("tracked"))
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(echoed, []byte("tracked")))

	cancelFunc()
	wg.Wait()
}

func TestShutdownForceCloses(t *testing.T) {
	var (
		wg       sync.WaitGroup
		serveErr error
	)
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: shutdownAddr}})
	util.GoFunc(&wg, func() {
		serveErr = server.ListenAndServe()
	})
	time.Sleep(time.Millisecond * 300)

	conn, err := tcpecho.NewConnection(shutdownAddr, testConf())
	assert.NilError(t, err)
	defer conn.Close()

	util.TryUntilSuccess(func() bool {
		return server.OpenConns(0) == 1
	}, time.Millisecond*10)

	sctx, scancel := context.WithTimeout(context.Background(), time.Second*10)
	defer scancel()
	assert.NilError(t, server.Shutdown(sctx))
	assert.Equal(t, server.OpenConns(0), 0)

	// the peer observes the close
	err = conn.ReadFull(make([]byte, 1))
	assert.Assert(t, err != nil)

	wg.Wait()
	assert.Equal(t, serveErr, tcpecho.ErrServerClosed)
}

func TestReusedConnection(t *testing.T) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	server := tcpecho.NewServer([]tcpecho.ServerBinding{{Addr: reuseAddr}})
	serveEcho(ctx, &wg, server)

	conn, err := tcpecho.NewReusedConnection(reuseAddr, testConf())
	assert.NilError(t, err)
	assert.Assert(t, conn.GetReusedCon() != nil)

	echoed, err := conn.RoundTrip([]byte("reused"))
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(echoed, []byte("reused")))

	conn.Close()
	cancelFunc()
	wg.Wait()
}
