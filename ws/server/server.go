package server

import (
	"github.com/sateffen/tcpecho"
)

// New is a wrapper for tcpecho.NewServer
func New(bindings []tcpecho.ServerBinding) *tcpecho.Server {
	for i := range bindings {
		bindings[i].OverlayNetwork = OverlayNetwork
	}
	return tcpecho.NewServer(bindings)
}
