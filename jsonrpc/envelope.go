package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the protocol literal carried by every request and response.
const Version = "2.0"

var jsonNull = json.RawMessage("null")

// Request is a parsed JSON-RPC request.
//
// ID is nil for notifications. When present it is the raw JSON of a number,
// string or null, and is echoed back unchanged in the response.
type Request struct {
	ID     json.RawMessage
	Method string
	Params json.RawMessage
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is
// serialized; a nil Result on a success response is written as null.
type Response struct {
	ID      json.RawMessage
	JSONRPC string
	Result  any
	Error   *Error
}

type wireResponse struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a success response for id.
func NewResult(id json.RawMessage, result any) Response {
	return Response{ID: id, JSONRPC: Version, Result: result}
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id json.RawMessage, err *Error) Response {
	return Response{ID: id, JSONRPC: Version, Error: err}
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{ID: r.ID, JSONRPC: r.JSONRPC}
	if len(w.ID) == 0 {
		w.ID = jsonNull
	}
	if w.JSONRPC == "" {
		w.JSONRPC = Version
	}
	if r.Error != nil {
		w.Error = r.Error
	} else {
		b, err := marshalValue(r.Result)
		if err != nil {
			return nil, err
		}
		w.Result = b
	}
	return marshalValue(w)
}

// UnmarshalJSON implements json.Unmarshaler. Result is left as json.RawMessage.
func (r *Response) UnmarshalJSON(b []byte) error {
	var w wireResponse
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.JSONRPC != Version {
		return fmt.Errorf("jsonrpc: unsupported protocol version %q", w.JSONRPC)
	}
	hasResult := w.Result != nil
	hasError := w.Error != nil
	if hasResult == hasError {
		return errors.New("jsonrpc: response must carry exactly one of result and error")
	}
	if err := checkID(w.ID); err != nil {
		return err
	}
	*r = Response{ID: w.ID, JSONRPC: w.JSONRPC, Error: w.Error}
	if hasResult {
		r.Result = w.Result
	}
	return nil
}

// Serialize encodes the response into its wire form.
//
// Property names are lower camel case, the absent one of result/error is
// omitted, and values implementing encoding.TextMarshaler (enums) are written
// as their string name. HTML characters are not escaped.
func Serialize(r Response) ([]byte, error) {
	return marshalValue(r)
}

// TryParseResponse decodes a wire response. It never panics; malformed input
// yields ok=false and the diagnostic error.
func TryParseResponse(b []byte) (resp Response, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp, ok, err = Response{}, false, fmt.Errorf("jsonrpc: parse response: %v", p)
		}
	}()
	if err := json.Unmarshal(b, &resp); err != nil {
		return Response{}, false, err
	}
	return resp, true, nil
}

// ParseRequest decodes a single request object. Malformed JSON yields a
// ParseError; well-formed JSON that is not a valid request object (including
// batches) yields an InvalidRequest error.
func ParseRequest(b []byte) (Request, *Error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Request{}, NewParseError()
	}
	if trimmed[0] != '{' {
		return Request{}, NewInvalidRequestError()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Request{}, NewParseError()
	}

	if v, ok := fields["jsonrpc"]; ok {
		var version string
		if err := json.Unmarshal(v, &version); err != nil || version != Version {
			return Request{}, NewInvalidRequestError()
		}
	}

	var req Request
	raw, ok := fields["method"]
	if !ok {
		return Request{}, NewInvalidRequestError()
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil || req.Method == "" {
		return Request{}, NewInvalidRequestError()
	}

	if id, ok := fields["id"]; ok {
		if checkID(id) != nil {
			return Request{}, NewInvalidRequestError()
		}
		req.ID = id
	}

	if p, ok := fields["params"]; ok && !bytes.Equal(p, jsonNull) {
		switch p[0] {
		case '[', '{':
			req.Params = p
		default:
			return Request{}, NewInvalidRequestError()
		}
	}
	return req, nil
}

// requestID extracts a usable id from a body that failed full validation, so
// that InvalidRequest responses can still be correlated.
func requestID(b []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(b, &probe) != nil || checkID(probe.ID) != nil {
		return nil
	}
	return probe.ID
}

func checkID(id json.RawMessage) error {
	if id == nil {
		return nil
	}
	switch c := id[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return nil
	case bytes.Equal(id, jsonNull):
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a number, string or null, got %s", id)
}

func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return jsonNull, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return jsonNull, nil
		}
		return raw, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
