package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mnehpets/rpchost/config"
	"github.com/mnehpets/rpchost/core"
	"github.com/mnehpets/rpchost/endpoint"
	"github.com/mnehpets/rpchost/events"
	"github.com/mnehpets/rpchost/gateway"
	"github.com/mnehpets/rpchost/host"
	"github.com/mnehpets/rpchost/jsonrpc"
	"github.com/mnehpets/rpchost/messaging"
	"github.com/mnehpets/rpchost/middleware"
	"github.com/mnehpets/rpchost/plugin"
	"github.com/mnehpets/rpchost/torrent"
)

// hostApp is a wired HTTP host.
type hostApp struct {
	server *host.Server
	bus    *events.Bus
	creds  *middleware.CredentialStore
	logger *slog.Logger
}

// newDispatcher wires the core and torrent services. Torrent mutations go
// through the command bus. A nil bus leaves auth.setCredentials out.
func newDispatcher(bus *events.Bus, session torrent.Session, logger *slog.Logger) (*jsonrpc.Dispatcher, error) {
	handlers := torrent.NewHandlers(session, logger)
	commands, err := messaging.NewBus(handlers.Bindings(), messaging.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	c := core.New(bus)
	reg, err := jsonrpc.NewRegistry(c, torrent.NewService(commands, session))
	if err != nil {
		return nil, err
	}
	c.Attach(reg)
	return jsonrpc.NewDispatcher(reg, jsonrpc.WithLogger(logger)), nil
}

func securityHeaders(cfg *config.Config) *middleware.SecurityHeadersProcessor {
	var opts []middleware.SecurityHeadersOption
	if len(cfg.CORSOrigins) > 0 {
		opts = append(opts, middleware.WithCORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}))
	}
	// Plain HTTP listeners on loopback gain nothing from HSTS.
	if name, _, err := net.SplitHostPort(cfg.Listen); err == nil && isLoopback(name) {
		opts = append(opts, middleware.WithoutHSTS())
	}
	return middleware.NewSecurityHeadersProcessor(opts...)
}

// healthz answers without authentication so probes need no credentials.
func healthz(w http.ResponseWriter, r *http.Request, params struct{}) (endpoint.Renderer, error) {
	return &endpoint.StringRenderer{Body: "ok"}, nil
}

func isLoopback(name string) bool {
	if name == "localhost" {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && ip.IsLoopback()
}

func newHostApp(cfg *config.Config, logger *slog.Logger) (*hostApp, error) {
	bus := events.New(events.WithLogger(logger))
	creds := middleware.NewCredentialStore(cfg.Auth.UserName, cfg.Auth.PasswordHash)

	var h http.Handler
	switch cfg.Mode {
	case config.ModeGateway:
		dialer := &plugin.Dialer{
			Network: cfg.Plugin.Network,
			Address: cfg.Plugin.Address,
			Timeout: time.Duration(cfg.Plugin.DialTimeout),
		}
		gw := gateway.New(dialer, creds, gateway.WithLogger(logger))
		gw.Subscribe(bus)
		h = gw.Handler()
	default:
		d, err := newDispatcher(bus, torrent.NewMemorySession(), logger)
		if err != nil {
			return nil, err
		}
		events.SubscribeFunc(bus, events.TopicAuthChanged, func(ctx context.Context, e events.AuthChanged) error {
			creds.Set(e.UserName, e.HashedPassword)
			logger.InfoContext(ctx, "credentials updated", "user", e.UserName)
			return nil
		})
		h = d.Handler(middleware.NewBasicAuthProcessor(creds))
	}

	mux := http.NewServeMux()
	mux.Handle("/", h)
	mux.Handle("GET /healthz", endpoint.HandleFunc(healthz))

	srv := host.New(host.Config{
		Addr:         cfg.Listen,
		MaxBodyBytes: cfg.MaxBodyBytes,
		DrainTimeout: time.Duration(cfg.DrainTimeout),
	}, mux, host.WithLogger(logger), host.WithMiddleware(securityHeaders(cfg).Wrap))

	return &hostApp{server: srv, bus: bus, creds: creds, logger: logger}, nil
}

// reload applies the parts of cfg that can change without a restart. Only
// the credentials qualify; other changes are logged and ignored.
//
// The file wins: credentials set by auth.setCredentials since the last load
// are replaced by the file's, even when the file itself is unchanged.
func (a *hostApp) reload(ctx context.Context, cfg *config.Config) error {
	live := a.creds.Snapshot()
	want := middleware.Credentials{UserName: cfg.Auth.UserName, PasswordHash: cfg.Auth.PasswordHash}
	if (live == nil && want.UserName == "") || (live != nil && *live == want) {
		a.logger.InfoContext(ctx, "config reloaded, credentials unchanged")
		return nil
	}
	if want.UserName == "" {
		a.creds.Clear()
		a.logger.WarnContext(ctx, "config reloaded, authentication disabled")
		return nil
	}
	return a.bus.Publish(ctx, events.TopicAuthChanged, events.AuthChanged{
		UserName:       cfg.Auth.UserName,
		HashedPassword: cfg.Auth.PasswordHash,
	})
}

// newPluginServer wires the plugin host. The plugin host has no event bus of
// its own, so auth.setCredentials is not offered there; gateway credentials
// change through the gateway's config.
func newPluginServer(cfg *config.Config, logger *slog.Logger) (*plugin.Server, *torrent.MemorySession, error) {
	session := torrent.NewMemorySession()
	d, err := newDispatcher(nil, session, logger)
	if err != nil {
		return nil, nil, err
	}
	srv := plugin.NewServer(cfg.Plugin.Network, cfg.Plugin.Address, d.RPC, plugin.WithLogger(logger))
	return srv, session, nil
}
