package jsonrpc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Dispatcher runs single JSON-RPC requests against a Registry.
//
// Each request moves through parse, method lookup, parameter binding and
// invocation. A failure at any step short-circuits to an error response with
// the matching code. Dispatcher holds no mutable state and is safe for
// concurrent use.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for handler failures and panics.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch processes one raw request. It returns nil when the request was a
// notification; notifications still execute, and their failures are logged
// at warn level rather than reported to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) *Response {
	req, perr := ParseRequest(body)
	if perr != nil {
		resp := NewErrorResponse(nil, perr)
		if perr.Code == CodeInvalidRequest {
			resp.ID = requestID(body)
		}
		return &resp
	}

	result, err := d.call(ctx, &req)
	if req.IsNotification() {
		if err != nil {
			d.logger.WarnContext(ctx, "jsonrpc notification failed", "method", req.Method, "error", err)
		}
		return nil
	}

	var resp Response
	if err != nil {
		resp = NewErrorResponse(req.ID, toRPCError(err))
	} else {
		resp = NewResult(req.ID, result)
	}
	return &resp
}

// Handle processes one raw request and returns the serialized response. The
// payload is empty for notifications.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) ([]byte, error) {
	resp := d.Dispatch(ctx, body)
	if resp == nil {
		return nil, nil
	}
	b, err := Serialize(*resp)
	if err != nil {
		// The result could not be encoded; report it as an execution failure.
		d.logger.ErrorContext(ctx, "jsonrpc encode result", "error", err)
		return Serialize(NewErrorResponse(resp.ID, NewInternalError(err)))
	}
	return b, nil
}

// RPC is Handle over strings, the form used across the plugin boundary.
func (d *Dispatcher) RPC(ctx context.Context, payload string) (string, error) {
	b, err := d.Handle(ctx, []byte(payload))
	return string(b), err
}

func (d *Dispatcher) call(ctx context.Context, req *Request) (result any, err error) {
	m, ok := d.registry.Lookup(req.Method)
	if !ok {
		return nil, NewMethodNotFoundError()
	}

	args, err := Bind(m, req.Params)
	if err != nil {
		d.logger.DebugContext(ctx, "jsonrpc bind params", "method", req.Method, "error", err)
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "jsonrpc panic", "method", req.Method, "panic", r, "stack", string(debug.Stack()))
			err = NewInternalError(fmt.Errorf("panic: %v", r))
		}
	}()
	return m.Handler(ctx, args)
}
