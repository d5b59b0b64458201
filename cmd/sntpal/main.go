package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/AndrewLester/sntpal/internal/logging"
	"github.com/AndrewLester/sntpal/internal/rpc"
	"github.com/AndrewLester/sntpal/pkg/sntp"
	"github.com/sevlyar/go-daemon"
)

const defaultConfigPath = "/etc/sntpal.conf"
const defaultSocketPath = "/tmp/sntpald.sock"

func main() {
	var config string
	var query string
	var transport string
	var socket string
	var step bool
	var noDaemon bool
	var debug bool
	flag.StringVar(&config, "config", defaultConfigPath, "Path to the sntpal config file.")
	flag.StringVar(&query, "query", "", "Server to sync against once.")
	flag.StringVar(&query, "q", query, "Server to sync against once.")
	flag.StringVar(&transport, "transport", "udp", "Transport to use: udp or http.")
	flag.StringVar(&socket, "socket", defaultSocketPath, "Path to the daemon's status socket.")
	flag.BoolVar(&step, "step", false, "Step the system clock by the computed offset after a -query sync.")
	flag.BoolVar(&noDaemon, "no-daemon", false, "Don't run sntpal as a daemon.")
	flag.BoolVar(&debug, "debug", false, "Log per-attempt detail.")
	flag.Parse()

	exchanger, err := exchangerFor(transport)
	if err != nil {
		log.Fatal(err)
	}

	if query != "" {
		handleQueryCommand(query, exchanger, step)
		return
	}

	if !noDaemon {
		d, err := daemonCtx.Reborn()
		if err != nil {
			if errors.Is(err, daemon.ErrWouldBlock) {
				// Daemon already runs; show its status instead.
				handleStatusUI(socket)
				return
			}
			log.Fatal("Unable to run: ", err)
		}
		if d != nil {
			fmt.Printf("Daemon process (sntpald, %d) started successfully.\n", d.Pid)
			return
		}
		defer daemonCtx.Release()
	}

	runDaemon(config, exchanger, socket, debug)
}

func exchangerFor(transport string) (sntp.Exchanger, error) {
	switch transport {
	case "udp":
		return sntp.UDPExchanger{}, nil
	case "http":
		return &sntp.HTTPExchanger{}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want udp or http)", transport)
	}
}

func runDaemon(configPath string, exchanger sntp.Exchanger, socket string, debug bool) {
	logger := logging.Initialize(os.Stdout, daemonCtx.LogFileName, debug)

	config, err := sntp.ParseConfigFile(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal(err)
		}
		config = sntp.NewConfig()
	}

	system := sntp.NewSystem(config, exchanger, sntp.WithLogger(logger))

	var wg sync.WaitGroup

	rpcServer := &rpc.SNTPalRPCServer{Socket: socket, System: system}
	wg.Add(1)
	go rpcServer.Listen(&wg)

	logger.Info("sntpald started", "servers", config.Servers)
	system.Run(context.Background())
	wg.Wait()
}
