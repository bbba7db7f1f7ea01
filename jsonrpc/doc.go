// Package jsonrpc implements a single-request JSON-RPC 2.0 dispatch engine.
//
// Methods are declared in an explicit table. Each service returns its methods
// and the registry is built once at startup:
//
//	type MathService struct{}
//
//	func (MathService) Methods() []jsonrpc.Method {
//	    return jsonrpc.Group("math",
//	        jsonrpc.Func2("add", jsonrpc.Arg[int]("a"), jsonrpc.Arg[int]("b"),
//	            func(ctx context.Context, a, b int) (int, error) { return a + b, nil }),
//	    )
//	}
//
//	reg, err := jsonrpc.NewRegistry(MathService{})
//	d := jsonrpc.NewDispatcher(reg)
//	http.Handle("/rpc", d.Handler())
//
// A registry build fails on any inconsistent declaration, including two
// services claiming the same method name.
//
// # Parameters
//
// Func1..Func3 methods accept params either as an array (by position) or as
// an object (by name); use Method.WithShape to restrict that. Values are
// coerced to the declared type where a lossless reading exists, so "5" binds
// to an int parameter. Binding failures are reported as InvalidParams.
//
// # Errors
//
// The five protocol errors have fixed messages. A handler error becomes an
// InternalError whose data is the error text, unless the handler returns a
// *Error, in which case its code is kept. Only InternalError carries data.
//
// Batches are not supported and are answered with InvalidRequest.
package jsonrpc
