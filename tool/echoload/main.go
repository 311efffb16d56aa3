package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sateffen/tcpecho"
	kcpclient "github.com/sateffen/tcpecho/kcp/client"
	unixclient "github.com/sateffen/tcpecho/unix/client"
	wsclient "github.com/sateffen/tcpecho/ws/client"
	"github.com/urfave/cli/v2"
	"github.com/zhiqiangxu/util"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Usage:     "open many connections against an echo server and verify every byte comes back",
		UsageText: "echoload [options] host:port",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "conns", Aliases: []string{"n"}, Value: 10000, Usage: "number of connections"},
			&cli.StringFlag{Name: "transport", Aliases: []string{"t"}, Value: "tcp", Usage: "one of tcp/ws/unix/kcp"},
			&cli.IntFlag{Name: "ramp", Usage: "dials per second, 0 for no limit"},
			&cli.DurationFlag{Name: "hold", Usage: "keep each connection open after its roundtrip"},
			&cli.DurationFlag{Name: "dial-timeout", Value: time.Second * 5},
			&cli.IntFlag{Name: "timeout", Value: 10, Usage: "read/write timeout in seconds"},
			&cli.BoolFlag{Name: "reuseport", Usage: "dial from reuseable local ports, tcp only"},
		},
		Action: loadTest,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadTest(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowAppHelp(c)
		return fmt.Errorf("addr not specified")
	}

	addr := c.Args().Get(0)
	n := c.Int("conns")
	transport := c.String("transport")
	hold := c.Duration("hold")
	reuseport := c.Bool("reuseport")

	conf := tcpecho.ConnectionConfig{
		DialTimeout:  c.Duration("dial-timeout"),
		ReadTimeout:  c.Int("timeout"),
		WriteTimeout: c.Int("timeout"),
	}

	limiter := ratelimit.NewUnlimited()
	if c.Int("ramp") > 0 {
		limiter = ratelimit.New(c.Int("ramp"))
	}

	var (
		wg       sync.WaitGroup
		failures int64
	)
	start := time.Now()
	for i := 0; i < n; i++ {
		limiter.Take()
		i := i
		util.GoFunc(&wg, func() {
			err := echoOnce(transport, addr, conf, i, reuseport, hold)
			if err != nil {
				atomic.AddInt64(&failures, 1)
			}
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("%d connections in %v (%.0f conn/s), %d failed\n", n, elapsed, float64(n)/elapsed.Seconds(), failures)
	if failures > 0 {
		return fmt.Errorf("%d of %d connections failed", failures, n)
	}
	return nil
}

func dial(transport, addr string, conf tcpecho.ConnectionConfig, reuseport bool) (*tcpecho.Connection, error) {
	switch transport {
	case "tcp":
		if reuseport {
			return tcpecho.NewReusedConnection(addr, conf)
		}
		return tcpecho.NewConnection(addr, conf)
	case "ws":
		return wsclient.NewConnection(addr, conf)
	case "unix":
		return unixclient.NewConnection(addr, conf)
	case "kcp":
		// kcp dial takes no config
		conf.DialTimeout = 0
		conf.WBufSize = 0
		conf.RBufSize = 0
		return kcpclient.NewConnection(addr, conf)
	default:
		return nil, fmt.Errorf("unknown transport: %s", transport)
	}
}

func echoOnce(transport, addr string, conf tcpecho.ConnectionConfig, i int, reuseport bool, hold time.Duration) error {
	conn, err := dial(transport, addr, conf, reuseport)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload := []byte(fmt.Sprintf("I am the %d one", i))
	echoed, err := conn.RoundTrip(payload)
	if err != nil {
		tcpecho.Logger().Error("RoundTrip", zap.Int("conn", i), zap.Error(err))
		return err
	}
	if !bytes.Equal(echoed, payload) {
		tcpecho.Logger().Error("echo mismatch", zap.ByteString("sent", payload), zap.ByteString("got", echoed))
		return fmt.Errorf("echo mismatch for connection %d", i)
	}

	if hold > 0 {
		time.Sleep(hold)
	}
	return nil
}
