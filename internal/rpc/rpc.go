// Package rpc exposes daemon status over a unix socket for the TUI.
package rpc

import (
	"errors"
	"log"
	"net"
	"net/rpc"
	"os"
	"sync"

	"github.com/AndrewLester/sntpal/pkg/sntp"
)

type SNTPalRPCServer struct {
	Socket string
	System *sntp.System
}

func (s *SNTPalRPCServer) Listen(wg *sync.WaitGroup) {
	defer wg.Done()

	rpc.Register(s)

	err := os.Remove(s.Socket)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("bind error:", err)
	}

	l, e := net.Listen("unix", s.Socket)
	if e != nil {
		log.Fatal("listen error:", e)
	}

	for {
		rpc.Accept(l)
	}
}

func (s *SNTPalRPCServer) FetchSnapshot(args int, reply *sntp.TimeSnapshot) error {
	*reply = s.System.Snapshot()
	return nil
}

func (s *SNTPalRPCServer) FetchServers(args int, reply *[]sntp.ServerStatus) error {
	*reply = s.System.ServerStatuses()
	return nil
}
