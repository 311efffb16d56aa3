package server

import (
	"net"

	"github.com/sateffen/tcpecho"
)

// New is a wrapper for tcpecho.NewServer
func New(bindings []tcpecho.ServerBinding) *tcpecho.Server {
	for i := range bindings {
		bindings[i].ListenFunc = func(network, address string) (net.Listener, error) {
			return net.Listen("unix", address)
		}
	}
	return tcpecho.NewServer(bindings)
}
