// Package gateway relays authenticated JSON-RPC requests to the isolated
// plugin host.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mnehpets/rpchost/endpoint"
	"github.com/mnehpets/rpchost/events"
	"github.com/mnehpets/rpchost/middleware"
	"github.com/mnehpets/rpchost/plugin"
)

// Gateway forwards each request body verbatim over a fresh plugin channel
// and relays the reply verbatim.
type Gateway struct {
	factory    plugin.ChannelFactory
	creds      *middleware.CredentialStore
	logger     *slog.Logger
	processors []endpoint.Processor
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithProcessors adds processors that run after authentication.
func WithProcessors(p ...endpoint.Processor) Option {
	return func(g *Gateway) {
		g.processors = append(g.processors, p...)
	}
}

// New returns a gateway. A nil creds disables authentication.
func New(factory plugin.ChannelFactory, creds *middleware.CredentialStore, opts ...Option) *Gateway {
	if creds == nil {
		creds = &middleware.CredentialStore{}
	}
	g := &Gateway{
		factory: factory,
		creds:   creds,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Credentials returns the store the gateway authenticates against.
func (g *Gateway) Credentials() *middleware.CredentialStore {
	return g.creds
}

// Subscribe keeps the credentials in step with auth.changed events. The
// returned function ends the subscription.
func (g *Gateway) Subscribe(bus *events.Bus) (unsubscribe func()) {
	return events.SubscribeFunc(bus, events.TopicAuthChanged, func(ctx context.Context, e events.AuthChanged) error {
		g.creds.Set(e.UserName, e.HashedPassword)
		g.logger.InfoContext(ctx, "gateway credentials updated", "user", e.UserName)
		return nil
	})
}

// Handler returns the gateway as an http.Handler behind Basic
// authentication.
func (g *Gateway) Handler() http.Handler {
	procs := append([]endpoint.Processor{middleware.NewBasicAuthProcessor(g.creds)}, g.processors...)
	return endpoint.Handler(g.Endpoint, procs...)
}

type relayParams struct {
	Body []byte `body:"" maxLength:"0"`
}

// Endpoint is the endpoint.EndpointFunc relaying one request.
func (g *Gateway) Endpoint(w http.ResponseWriter, r *http.Request, params relayParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	reply, err := g.relay(r.Context(), string(params.Body))
	if err != nil {
		g.logger.ErrorContext(r.Context(), "gateway relay failed", "error", err)
		return nil, &endpoint.EndpointError{Status: http.StatusInternalServerError, Message: err.Error(), Cause: err}
	}
	return &endpoint.RawJSONRenderer{Status: http.StatusOK, Body: []byte(reply)}, nil
}

func (g *Gateway) relay(ctx context.Context, payload string) (reply string, err error) {
	ch, err := g.factory.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("gateway: open channel: %w", err)
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("gateway: close channel: %w", cerr))
		}
	}()
	reply, err = ch.RPC(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("gateway: rpc: %w", err)
	}
	return reply, nil
}
