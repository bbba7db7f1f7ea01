package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type testService struct {
	notified atomic.Int32
}

func (s *testService) ServiceName() string { return "test" }

func (s *testService) Methods() []Method {
	return Group("test",
		Func1("echo", Arg[string]("s"), func(_ context.Context, v string) (string, error) { return v, nil }),
		Func2("sub", Arg[int]("a"), Arg[int]("b"), sub),
		Func0("fail", func(context.Context) (any, error) { return nil, errors.New("boom") }),
		Func0("panic", func(context.Context) (any, error) { panic("kaboom") }),
		Func0("invalid", func(context.Context) (any, error) {
			return nil, &Error{Code: CodeInvalidParams, Message: msgInvalidParams, Data: "secret"}
		}),
		Func0("notify", func(context.Context) (any, error) {
			s.notified.Add(1)
			return nil, nil
		}),
		Func0("void", func(context.Context) (any, error) { return nil, nil }),
	)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testService) {
	t.Helper()
	svc := &testService{}
	reg, err := NewRegistry(svc)
	if err != nil {
		t.Fatal(err)
	}
	return NewDispatcher(reg, WithLogger(slog.New(slog.DiscardHandler))), svc
}

func decode(t *testing.T, b []byte) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("bad response %s: %v", b, err)
	}
	return m
}

func errorCode(t *testing.T, b []byte) int {
	t.Helper()
	var resp struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(b, &resp); err != nil || resp.Error == nil {
		t.Fatalf("expected error response, got %s", b)
	}
	return resp.Error.Code
}

func TestDispatcher_Handle(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		body       string
		wantResult string
		wantCode   int
		wantID     string
	}{
		{"positional", `{"jsonrpc":"2.0","method":"test.sub","params":[5,3],"id":1}`, `2`, 0, `1`},
		{"named", `{"jsonrpc":"2.0","method":"test.sub","params":{"a":5,"b":3},"id":"q"}`, `2`, 0, `"q"`},
		{"null result", `{"jsonrpc":"2.0","method":"test.void","id":2}`, `null`, 0, `2`},
		{"parse error", `{"jsonrpc":`, ``, CodeParseError, `null`},
		{"batch", `[{"jsonrpc":"2.0","method":"test.void","id":1}]`, ``, CodeInvalidRequest, `null`},
		{"invalid request keeps id", `{"jsonrpc":"2.0","id":9}`, ``, CodeInvalidRequest, `9`},
		{"unknown method", `{"jsonrpc":"2.0","method":"test.nope","id":3}`, ``, CodeMethodNotFound, `3`},
		{"case sensitive", `{"jsonrpc":"2.0","method":"TEST.sub","params":[1,1],"id":4}`, ``, CodeMethodNotFound, `4`},
		{"bad params", `{"jsonrpc":"2.0","method":"test.sub","params":["x",1],"id":5}`, ``, CodeInvalidParams, `5`},
		{"handler error", `{"jsonrpc":"2.0","method":"test.fail","id":6}`, ``, CodeInternalError, `6`},
		{"handler panic", `{"jsonrpc":"2.0","method":"test.panic","id":7}`, ``, CodeInternalError, `7`},
		{"handler protocol error", `{"jsonrpc":"2.0","method":"test.invalid","id":8}`, ``, CodeInvalidParams, `8`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := d.Handle(ctx, []byte(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			m := decode(t, b)
			if string(m["jsonrpc"]) != `"2.0"` {
				t.Errorf("jsonrpc = %s", m["jsonrpc"])
			}
			if string(m["id"]) != tt.wantID {
				t.Errorf("id = %s, want %s", m["id"], tt.wantID)
			}
			_, hasResult := m["result"]
			_, hasError := m["error"]
			if hasResult == hasError {
				t.Fatalf("want exactly one of result and error: %s", b)
			}
			if tt.wantCode != 0 {
				if got := errorCode(t, b); got != tt.wantCode {
					t.Errorf("code = %d, want %d", got, tt.wantCode)
				}
				return
			}
			if string(m["result"]) != tt.wantResult {
				t.Errorf("result = %s, want %s", m["result"], tt.wantResult)
			}
		})
	}
}

func TestDispatcher_ErrorData(t *testing.T) {
	d, _ := newTestDispatcher(t)

	b, _ := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"test.fail","id":1}`))
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Data != "boom" {
		t.Errorf("internal error data = %v", resp.Error.Data)
	}

	b, _ = d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"test.invalid","id":1}`))
	if bytes.Contains(b, []byte("secret")) || bytes.Contains(b, []byte(`"data"`)) {
		t.Errorf("non-internal error leaked data: %s", b)
	}
}

func TestDispatcher_Notifications(t *testing.T) {
	d, svc := newTestDispatcher(t)
	ctx := context.Background()

	b, err := d.Handle(ctx, []byte(`{"jsonrpc":"2.0","method":"test.notify"}`))
	if err != nil || len(b) != 0 {
		t.Fatalf("notification produced %s, %v", b, err)
	}
	if svc.notified.Load() != 1 {
		t.Error("notification did not execute")
	}

	// Failures are swallowed for notifications.
	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"test.fail"}`,
		`{"jsonrpc":"2.0","method":"test.panic"}`,
		`{"jsonrpc":"2.0","method":"test.nope"}`,
	} {
		if resp := d.Dispatch(ctx, []byte(body)); resp != nil {
			t.Errorf("%s: got response %+v", body, resp)
		}
	}
}

func TestDispatcher_RPC(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out, err := d.RPC(context.Background(), `{"jsonrpc":"2.0","method":"test.echo","params":{"s":"hi"},"id":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"id":1,"jsonrpc":"2.0","result":"hi"}` {
		t.Errorf("got %s", out)
	}
}

func TestDispatcher_Endpoint(t *testing.T) {
	d, _ := newTestDispatcher(t)
	h := d.Handler()

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
		wantBody    string
	}{
		{"ok", http.MethodPost, "application/json", `{"jsonrpc":"2.0","method":"test.sub","params":[2,1],"id":1}`, http.StatusOK, `{"id":1,"jsonrpc":"2.0","result":1}`},
		{"charset", http.MethodPost, "application/json; charset=utf-8", `{"jsonrpc":"2.0","method":"test.sub","params":[2,1],"id":1}`, http.StatusOK, `{"id":1,"jsonrpc":"2.0","result":1}`},
		{"rpc error is 200", http.MethodPost, "", `{"jsonrpc":"2.0","method":"nope","id":1}`, http.StatusOK, ""},
		{"notification", http.MethodPost, "application/json", `{"jsonrpc":"2.0","method":"test.void"}`, http.StatusOK, ""},
		{"get", http.MethodGet, "", ``, http.StatusMethodNotAllowed, ""},
		{"wrong type", http.MethodPost, "text/plain", `{}`, http.StatusUnsupportedMediaType, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/rpc", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %s, want %s", rec.Body.String(), tt.wantBody)
			}
			if tt.name == "notification" && rec.Body.Len() != 0 {
				t.Errorf("notification body = %q", rec.Body.String())
			}
		})
	}
}
