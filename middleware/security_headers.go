package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/rpchost/endpoint"
)

// SecurityHeadersProcessor sets response headers that lock down the RPC
// surface for browsers: the host only ever serves JSON and plain text, so
// nothing it returns may be framed, sniffed or used as a script source.
//
// Defaults from NewSecurityHeadersProcessor:
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Frame-Options: DENY
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin
//   - Cache-Control: no-store
//
// A web UI served from another origin needs CORS; configure it with WithCORS.
// Preflight requests are answered with 204 without reaching the handler.
type SecurityHeadersProcessor struct {
	// HSTS configures Strict-Transport-Security. Nil disables it.
	HSTS *HSTSConfig
	// CORS configures cross-origin access. Nil sends no CORS headers.
	CORS *CORSConfig

	static http.Header
}

// HSTSConfig configures HTTP Strict Transport Security.
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// CORSConfig configures Cross-Origin Resource Sharing.
type CORSConfig struct {
	// AllowedOrigins lists the origins echoed back. "*" allows any origin
	// unless AllowCredentials is set.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	// MaxAge is how long, in seconds, a preflight result may be cached.
	MaxAge int
}

// SecurityHeadersOption configures a SecurityHeadersProcessor.
type SecurityHeadersOption func(*SecurityHeadersProcessor)

// WithHSTS replaces the HSTS settings.
func WithHSTS(maxAge int, includeSubDomains, preload bool) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = &HSTSConfig{MaxAge: maxAge, IncludeSubDomains: includeSubDomains, Preload: preload}
	}
}

// WithoutHSTS disables HSTS, for plain-HTTP deployments on loopback.
func WithoutHSTS() SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = nil
	}
}

// WithHeader overrides one static header. An empty value removes it.
func WithHeader(name, value string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		if value == "" {
			p.static.Del(name)
			return
		}
		p.static.Set(name, value)
	}
}

// WithCORS enables CORS. Methods and headers default to POST, OPTIONS and
// Content-Type, Authorization.
func WithCORS(config CORSConfig) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		if len(config.AllowedMethods) == 0 {
			config.AllowedMethods = []string{http.MethodPost, http.MethodOptions}
		}
		if len(config.AllowedHeaders) == 0 {
			config.AllowedHeaders = []string{"Content-Type", "Authorization"}
		}
		p.CORS = &config
	}
}

// NewSecurityHeadersProcessor creates a processor with the defaults above.
func NewSecurityHeadersProcessor(opts ...SecurityHeadersOption) *SecurityHeadersProcessor {
	p := &SecurityHeadersProcessor{
		HSTS: &HSTSConfig{MaxAge: 31536000, IncludeSubDomains: true},
		static: http.Header{
			"Referrer-Policy":              {"no-referrer"},
			"X-Frame-Options":              {"DENY"},
			"X-Content-Type-Options":       {"nosniff"},
			"Content-Security-Policy":      {"default-src 'none'; frame-ancestors 'none'"},
			"Cross-Origin-Resource-Policy": {"same-origin"},
			"Cache-Control":                {"no-store"},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if v := formatHSTS(p.HSTS); v != "" {
		p.static.Set("Strict-Transport-Security", v)
	}
	return p
}

// apply writes the headers and reports whether r is a CORS preflight that
// should be answered directly.
func (p *SecurityHeadersProcessor) apply(w http.ResponseWriter, r *http.Request) bool {
	h := w.Header()
	for k, v := range p.static {
		h[k] = slices.Clone(v)
	}
	if p.CORS == nil {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	h.Add("Vary", "Origin")
	switch {
	case slices.Contains(p.CORS.AllowedOrigins, origin):
		h.Set("Access-Control-Allow-Origin", origin)
	case slices.Contains(p.CORS.AllowedOrigins, "*") && !p.CORS.AllowCredentials:
		// Wildcard with credentials is forbidden by browsers.
		h.Set("Access-Control-Allow-Origin", "*")
	default:
		return false
	}
	if p.CORS.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
		return false
	}
	h.Set("Access-Control-Allow-Methods", strings.Join(p.CORS.AllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(p.CORS.AllowedHeaders, ", "))
	if p.CORS.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(p.CORS.MaxAge))
	}
	return true
}

// Process implements endpoint.Processor.
func (p *SecurityHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.apply(w, r) {
		return &endpoint.EndpointError{Status: http.StatusNoContent, Empty: true}
	}
	return next(w, r)
}

// Wrap applies the headers to every response of next, including responses
// written by outer layers such as panic recovery.
func (p *SecurityHeadersProcessor) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.apply(w, r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func formatHSTS(config *HSTSConfig) string {
	if config == nil || config.MaxAge <= 0 {
		return ""
	}
	parts := []string{"max-age=" + strconv.Itoa(config.MaxAge)}
	if config.IncludeSubDomains {
		parts = append(parts, "includeSubDomains")
	}
	if config.Preload {
		parts = append(parts, "preload")
	}
	return strings.Join(parts, "; ")
}

var _ endpoint.Processor = (*SecurityHeadersProcessor)(nil)
