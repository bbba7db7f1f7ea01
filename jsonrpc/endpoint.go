package jsonrpc

import (
	"mime"
	"net/http"

	"github.com/mnehpets/rpchost/endpoint"
)

type rpcParams struct {
	Body []byte `body:"" maxLength:"0"`
}

// Endpoint is an endpoint.EndpointFunc serving the dispatcher over HTTP.
//
// JSON-RPC outcomes, including error responses, are always sent with status
// 200. Notifications get 200 with an empty body. Transport level problems are
// reported as HTTP errors instead.
func (d *Dispatcher) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", err)
		}
	}

	b, err := d.Handle(r.Context(), params.Body)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return &endpoint.NoContentRenderer{Status: http.StatusOK}, nil
	}
	return &endpoint.RawJSONRenderer{Status: http.StatusOK, Body: b}, nil
}

// Handler returns the dispatcher wrapped as an http.Handler with the given
// processors ahead of it.
func (d *Dispatcher) Handler(processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(d.Endpoint, processors...)
}
