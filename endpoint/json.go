package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer serializes a value as JSON and writes it to the response.
//
// Content-Type is always set to "application/json". Since writing the
// response may have already started, callers should treat returned encoding
// errors as best-effort signals.
//
// HTML characters are not escaped. The encoder appends a trailing newline.
type JSONRenderer struct {
	Status int
	Value  any
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")

	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(jr.Value)
}

// RawJSONRenderer writes an encoded JSON payload verbatim with
// Content-Type "application/json". An empty Body writes headers only.
type RawJSONRenderer struct {
	Status int
	Body   []byte
}

func (rr *RawJSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := rr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(rr.Body) == 0 {
		return nil
	}
	_, err := w.Write(rr.Body)
	return err
}
