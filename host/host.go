// Package host owns the HTTP listener that fronts the RPC handler.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrServerClosed is returned by Open once the server has been closed. A
// closed Server cannot be reopened; create a new one.
var ErrServerClosed = errors.New("host: server closed")

// State is the lifecycle state of a Server.
type State int32

const (
	StateCreated State = iota
	StateOpened
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config configures the listener.
type Config struct {
	// Addr is the TCP address to bind, e.g. "127.0.0.1:7070". Port 0 picks a
	// free port; see Server.Addr.
	Addr string
	// MaxBodyBytes limits request bodies. Zero means 1MiB.
	MaxBodyBytes int64
	// DrainTimeout bounds how long Close waits for in-flight requests before
	// closing their connections. Zero means 10s.
	DrainTimeout time.Duration
	// ReadHeaderTimeout is passed to http.Server. Zero means 10s.
	ReadHeaderTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	return c
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMiddleware wraps the whole handler chain, outside panic recovery, so
// that anything it sets also reaches recovered responses. The first
// middleware given is the outermost.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// Server is an HTTP listener with an explicit Open/Close lifecycle.
type Server struct {
	cfg        Config
	handler    http.Handler
	logger     *slog.Logger
	middleware []func(http.Handler) http.Handler

	state atomic.Int32

	mu       sync.Mutex
	srv      *http.Server
	ln       net.Listener
	cancel   context.CancelFunc
	loopDone chan struct{}
	closed   chan struct{}
}

// New returns a server that will serve h once opened.
func New(cfg Config, h http.Handler, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.withDefaults(),
		handler: h,
		logger:  slog.New(slog.DiscardHandler),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound address, or nil if the server is not open.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Open binds the listener and starts serving in the background. It returns
// once the socket is bound.
func (s *Server) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateCreated:
	case StateClosing, StateClosed:
		return ErrServerClosed
	default:
		return errors.New("host: server already open")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("host: listen %s: %w", s.cfg.Addr, err)
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s.ln = ln
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.srv = &http.Server{
		Handler:           s.wrap(s.handler),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.state.Store(int32(StateOpened))

	go s.acceptLoop(s.srv, ln, s.loopDone)
	s.state.Store(int32(StateRunning))
	s.logger.Info("host listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) acceptLoop(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("host accept loop stopped", "error", err)
	}
}

// Close stops accepting connections and waits up to Config.DrainTimeout for
// in-flight requests to finish before closing their connections. It returns
// after the accept loop has exited and the socket is released. Concurrent
// and repeated calls wait for the first one to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	switch s.State() {
	case StateCreated:
		s.state.Store(int32(StateClosed))
		close(s.closed)
		s.mu.Unlock()
		return nil
	case StateClosing, StateClosed:
		s.mu.Unlock()
		<-s.closed
		return nil
	}
	s.state.Store(int32(StateClosing))
	srv, done, cancel := s.srv, s.loopDone, s.cancel
	s.mu.Unlock()

	ctx, stop := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer stop()
	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("host drain timed out; closing connections", "timeout", s.cfg.DrainTimeout)
		err = srv.Close()
	}
	cancel()
	<-done

	s.mu.Lock()
	s.ln = nil
	s.state.Store(int32(StateClosed))
	close(s.closed)
	s.mu.Unlock()
	s.logger.Info("host closed")
	return err
}
