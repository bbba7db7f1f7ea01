// Package core provides the built-in RPC methods every host exposes.
package core

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/mnehpets/rpchost/events"
	"github.com/mnehpets/rpchost/jsonrpc"
	"github.com/mnehpets/rpchost/middleware"
)

// Version is reported by core.version. Set at link time with
// -ldflags "-X github.com/mnehpets/rpchost/core.Version=...".
var Version = "dev"

// Service implements core.ping, core.version and core.methods, plus
// auth.setCredentials when an event bus is configured.
type Service struct {
	bus      *events.Bus
	registry atomic.Pointer[jsonrpc.Registry]
	hash     func(string) (string, error)
}

// New returns the core service. With a nil bus, auth.setCredentials is not
// registered.
func New(bus *events.Bus) *Service {
	return &Service{bus: bus, hash: middleware.HashPassword}
}

// Attach gives core.methods the registry to list. Until then it reports
// no methods.
func (s *Service) Attach(reg *jsonrpc.Registry) {
	s.registry.Store(reg)
}

func (s *Service) ServiceName() string { return "core" }

// Methods implements jsonrpc.Service.
func (s *Service) Methods() []jsonrpc.Method {
	methods := jsonrpc.Group("core",
		jsonrpc.Func0("ping", func(context.Context) (string, error) { return "pong", nil }),
		jsonrpc.Func0("version", func(context.Context) (string, error) { return Version, nil }),
		jsonrpc.Func0("methods", s.methods),
	)
	if s.bus != nil {
		methods = append(methods, jsonrpc.Group("auth",
			jsonrpc.Func2("setCredentials", jsonrpc.Arg[string]("userName"), jsonrpc.Arg[string]("password"), s.setCredentials),
		)...)
	}
	return methods
}

func (s *Service) methods(context.Context) ([]string, error) {
	reg := s.registry.Load()
	if reg == nil {
		return []string{}, nil
	}
	return reg.Names(), nil
}

// setCredentials hashes the password and announces the change. Listeners
// such as the gateway apply it without a restart.
func (s *Service) setCredentials(ctx context.Context, userName, password string) (bool, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return false, jsonrpc.NewInvalidParamsError()
	}
	hash, err := s.hash(password)
	if err != nil {
		return false, err
	}
	if err := s.bus.Publish(ctx, events.TopicAuthChanged, events.AuthChanged{UserName: userName, HashedPassword: hash}); err != nil {
		return false, err
	}
	return true, nil
}
