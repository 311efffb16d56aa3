package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/sateffen/tcpecho"
	kcpserver "github.com/sateffen/tcpecho/kcp/server"
	unixserver "github.com/sateffen/tcpecho/unix/server"
	wsserver "github.com/sateffen/tcpecho/ws/server"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Usage:     "echo server daemon",
		UsageText: "echod [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: tcpecho.DefaultListenAddr, Usage: "listen address, socket path for -t unix"},
			&cli.StringFlag{Name: "transport", Aliases: []string{"t"}, Value: "tcp", Usage: "one of tcp/ws/unix/kcp"},
			&cli.IntFlag{Name: "read-buf", Value: tcpecho.DefaultReadBufSize, Usage: "read buffer size in bytes"},
			&cli.IntFlag{Name: "max-conns", Usage: "max simultaneous connections, 0 for no limit"},
			&cli.IntFlag{Name: "close-rate", Usage: "max connection closes per second, 0 for no limit"},
			&cli.BoolFlag{Name: "debug", Usage: "log at debug level"},
		},
		Action: serve,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	if c.Bool("debug") {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		tcpecho.SetLogger(zl)
	}

	binding := tcpecho.ServerBinding{
		Addr:           c.String("addr"),
		ReadBufSize:    c.Int("read-buf"),
		MaxConns:       c.Int("max-conns"),
		CloseRateLimit: c.Int("close-rate"),
	}

	var srv *tcpecho.Server
	transport := c.String("transport")
	switch transport {
	case "tcp":
		srv = tcpecho.NewServer([]tcpecho.ServerBinding{binding})
	case "ws":
		srv = wsserver.New([]tcpecho.ServerBinding{binding})
	case "unix":
		srv = unixserver.New([]tcpecho.ServerBinding{binding})
	case "kcp":
		srv = kcpserver.New([]tcpecho.ServerBinding{binding})
	default:
		return fmt.Errorf("unknown transport: %s", transport)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return srv.ListenAndServe()
	}, func(error) {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second*30)
		defer scancel()
		srv.Shutdown(sctx)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Add(func() error {
		select {
		case sig := <-sigCh:
			tcpecho.Logger().Info("received signal", zap.String("signal", sig.String()))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, func(error) {
		signal.Stop(sigCh)
		cancel()
	})

	return g.Run()
}
