// This example runs a plugin host and a gateway in one process. Requests to
// the gateway need Basic credentials admin/admin.
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/mnehpets/rpchost/core"
	"github.com/mnehpets/rpchost/gateway"
	"github.com/mnehpets/rpchost/host"
	"github.com/mnehpets/rpchost/jsonrpc"
	"github.com/mnehpets/rpchost/middleware"
	"github.com/mnehpets/rpchost/plugin"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	reg := jsonrpc.MustNewRegistry(core.New(nil))
	d := jsonrpc.NewDispatcher(reg, jsonrpc.WithLogger(logger))
	plugins := plugin.NewServer("tcp", "127.0.0.1:0", d.RPC, plugin.WithLogger(logger))
	if err := plugins.Open(); err != nil {
		log.Fatal(err)
	}
	defer plugins.Close()

	hash, err := middleware.HashPassword("admin")
	if err != nil {
		log.Fatal(err)
	}
	gw := gateway.New(
		&plugin.Dialer{Network: "tcp", Address: plugins.Addr().String()},
		middleware.NewCredentialStore("admin", hash),
		gateway.WithLogger(logger),
	)

	srv := host.New(host.Config{Addr: "127.0.0.1:8080"}, gw.Handler(), host.WithLogger(logger))
	if err := srv.Open(); err != nil {
		log.Fatal(err)
	}
	// curl -u admin:admin -d '{"jsonrpc":"2.0","id":1,"method":"core.ping"}' -H 'Content-Type: application/json' localhost:8080
	logger.Info("gateway listening", "addr", srv.Addr().String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	if err := srv.Close(); err != nil {
		logger.Error("close", "error", err)
	}
}
