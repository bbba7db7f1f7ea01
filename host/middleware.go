package host

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/mnehpets/rpchost/jsonrpc"
)

// statusWriter records the status code for logging and whether the header
// has been sent.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// wrap builds: middleware(log(recover(limit(h)))).
func (s *Server) wrap(h http.Handler) http.Handler {
	limit := s.cfg.MaxBodyBytes
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		h.ServeHTTP(w, r)
	})

	var out http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		s.serveRecover(sw, r, inner)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration", time.Since(start),
		)
	})
	for i := len(s.middleware) - 1; i >= 0; i-- {
		out = s.middleware[i](out)
	}
	return out
}

// serveRecover converts a handler panic into a 500 carrying a JSON-RPC
// InternalError, so the caller never sees a dropped connection.
func (s *Server) serveRecover(w *statusWriter, r *http.Request, h http.Handler) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(p)
		}
		s.logger.ErrorContext(r.Context(), "handler panic", "panic", p, "stack", string(debug.Stack()))
		if w.status != 0 {
			// Too late for a clean response.
			return
		}
		body, err := jsonrpc.Serialize(jsonrpc.NewErrorResponse(nil, jsonrpc.NewInternalError(fmt.Errorf("panic: %v", p))))
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(body)
	}()
	h.ServeHTTP(w, r)
}
