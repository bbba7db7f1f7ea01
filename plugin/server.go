package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
)

// ErrServerClosed is returned by Open after Close.
var ErrServerClosed = errors.New("plugin: server closed")

// RPCFunc handles one relayed payload. An empty result is a valid reply,
// used for notifications.
type RPCFunc func(ctx context.Context, payload string) (string, error)

// Server accepts channel connections and answers each request frame with
// the result of its RPCFunc.
type Server struct {
	network string
	address string
	rpc     RPCFunc
	logger  *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer returns a server for network ("tcp" or "unix") and address.
func NewServer(network, address string, rpc RPCFunc, opts ...ServerOption) *Server {
	s := &Server{
		network: network,
		address: address,
		rpc:     rpc,
		logger:  slog.New(slog.DiscardHandler),
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open binds the listener and starts accepting in the background.
func (s *Server) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil {
		return errors.New("plugin: server already open")
	}
	if s.network == "unix" {
		// A socket file left by a crashed process blocks the bind.
		if err := os.Remove(s.address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("plugin: remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("plugin: listen %s %s: %w", s.network, s.address, err)
	}
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.loopDone = make(chan struct{})
	go s.acceptLoop(ln)
	s.logger.Info("plugin server listening", "network", s.network, "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Open.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.loopDone)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("plugin accept", "error", err)
			}
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var req request
		if err := readFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("plugin read frame", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}
		rep := s.handle(req)
		if err := writeFrame(conn, rep); err != nil {
			s.logger.Warn("plugin write frame", "remote", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

func (s *Server) handle(req request) (rep reply) {
	if req.Op != OpRPC {
		return reply{Error: fmt.Sprintf("unsupported operation %q", req.Op)}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("plugin rpc panic", "panic", r, "stack", string(debug.Stack()))
			rep = reply{Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	out, err := s.rpc(s.ctx, req.Payload)
	if err != nil {
		return reply{Error: err.Error()}
	}
	return reply{Payload: out}
}

// Close stops accepting, closes every connection and waits for the
// connection goroutines to finish. Calling it again is a no-op.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln, done := s.ln, s.loopDone
	if s.cancel != nil {
		s.cancel()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	<-done
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
