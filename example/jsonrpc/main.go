package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mnehpets/rpchost/endpoint"
	"github.com/mnehpets/rpchost/jsonrpc"
	"github.com/mnehpets/rpchost/middleware"
)

func add(_ context.Context, a, b int) (int, error) {
	return a + b, nil
}

func health(w http.ResponseWriter, r *http.Request, params struct{}) (endpoint.Renderer, error) {
	return &endpoint.JSONRenderer{Value: map[string]string{"status": "ok"}}, nil
}

func main() {
	math := jsonrpc.Static("math",
		jsonrpc.Group("math",
			jsonrpc.Func2("add", jsonrpc.Arg[int]("a"), jsonrpc.Arg[int]("b"), add),
			jsonrpc.Func2("scale", jsonrpc.Arg[float64]("x"), jsonrpc.OptionalArg("factor", 2.0),
				func(_ context.Context, x, factor float64) (float64, error) { return x * factor, nil }),
		)...,
	)
	reg := jsonrpc.MustNewRegistry(math)
	d := jsonrpc.NewDispatcher(reg)

	security := middleware.NewSecurityHeadersProcessor(middleware.WithoutHSTS())

	mux := http.NewServeMux()
	// curl -d '{"jsonrpc":"2.0","id":1,"method":"math.add","params":[1,2]}' -H 'Content-Type: application/json' localhost:8080/rpc
	mux.Handle("/rpc", d.Handler(security))
	mux.HandleFunc("GET /health", endpoint.HandleFunc(health, security))

	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", mux))
}
