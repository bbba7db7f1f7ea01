package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSerialize(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{"number id", NewResult(json.RawMessage("1"), 5), `{"id":1,"jsonrpc":"2.0","result":5}`},
		{"string id", NewResult(json.RawMessage(`"a"`), "x"), `{"id":"a","jsonrpc":"2.0","result":"x"}`},
		{"nil result", NewResult(json.RawMessage("2"), nil), `{"id":2,"jsonrpc":"2.0","result":null}`},
		{"nil id", NewErrorResponse(nil, NewParseError()), `{"id":null,"jsonrpc":"2.0","error":{"code":-32700,"message":"` + msgParseError + `"}}`},
		{"enum as name", NewResult(json.RawMessage("3"), ShapeNamed), `{"id":3,"jsonrpc":"2.0","result":"named"}`},
		{"no html escape", NewResult(json.RawMessage("4"), "<a&b>"), `{"id":4,"jsonrpc":"2.0","result":"<a&b>"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Serialize(tt.resp)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Errorf("got  %s\nwant %s", b, tt.want)
			}
		})
	}
}

func TestErrorConstructorsCarryNoData(t *testing.T) {
	for _, e := range []*Error{NewParseError(), NewInvalidRequestError(), NewMethodNotFoundError(), NewInvalidParamsError()} {
		if e.Data != nil {
			t.Errorf("code %d carries data %v", e.Code, e.Data)
		}
	}
	if got := NewInternalError(errors.New("disk full")).Data; got != "disk full" {
		t.Errorf("internal error data = %v", got)
	}
}

func TestTryParseResponse_RoundTrip(t *testing.T) {
	tests := []Response{
		NewResult(json.RawMessage("7"), map[string]int{"a": 1}),
		NewResult(json.RawMessage(`"abc"`), nil),
		NewResult(json.RawMessage("null"), true),
		NewErrorResponse(json.RawMessage("8"), NewMethodNotFoundError()),
		NewErrorResponse(json.RawMessage(`"x"`), NewInternalError(errors.New("boom"))),
	}
	for _, in := range tests {
		b, err := Serialize(in)
		if err != nil {
			t.Fatal(err)
		}
		out, ok, err := TryParseResponse(b)
		if !ok || err != nil {
			t.Fatalf("parse %s: ok=%v err=%v", b, ok, err)
		}
		if string(out.ID) != string(in.ID) {
			t.Errorf("id: got %s want %s", out.ID, in.ID)
		}
		if out.JSONRPC != Version {
			t.Errorf("jsonrpc: got %q", out.JSONRPC)
		}
		if (out.Error == nil) != (in.Error == nil) {
			t.Fatalf("error presence changed for %s", b)
		}
		if in.Error != nil {
			if out.Error.Code != in.Error.Code || out.Error.Message != in.Error.Message || out.Error.Data != in.Error.Data {
				t.Errorf("error: got %+v want %+v", out.Error, in.Error)
			}
			continue
		}
		want, _ := marshalValue(in.Result)
		if got := out.Result.(json.RawMessage); string(got) != string(want) {
			t.Errorf("result: got %s want %s", got, want)
		}
	}
}

func TestTryParseResponse_Malformed(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`[]`,
		`{"jsonrpc":"1.0","id":1,"result":1}`,
		`{"jsonrpc":"2.0","id":1}`,
		`{"jsonrpc":"2.0","id":1,"result":1,"error":{"code":1,"message":"x"}}`,
		`{"jsonrpc":"2.0","id":{},"result":1}`,
	}
	for _, in := range inputs {
		_, ok, err := TryParseResponse([]byte(in))
		if ok || err == nil {
			t.Errorf("%q: expected failure, got ok=%v err=%v", in, ok, err)
		}
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		in       string
		wantCode int
	}{
		{`{"jsonrpc":"2.0","method":"a","id":1}`, 0},
		{`{"jsonrpc":"2.0","method":"a","params":null}`, 0},
		{`{"jsonrpc":"2.0","method":"a","params":[1],"id":"x"}`, 0},
		{`{"jsonrpc":"2.0","method":"a","params":{},"id":null}`, 0},
		{`{"jsonrpc":"2.0","method":`, CodeParseError},
		{``, CodeParseError},
		{`[{"jsonrpc":"2.0","method":"a","id":1}]`, CodeInvalidRequest},
		{`"hello"`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","method":"","id":1}`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","method":3,"id":1}`, CodeInvalidRequest},
		{`{"jsonrpc":"1.0","method":"a","id":1}`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","method":"a","id":true}`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","method":"a","params":5,"id":1}`, CodeInvalidRequest},
	}
	for _, tt := range tests {
		req, perr := ParseRequest([]byte(tt.in))
		if tt.wantCode == 0 {
			if perr != nil {
				t.Errorf("%s: unexpected error %v", tt.in, perr)
			} else if req.Method != "a" {
				t.Errorf("%s: method = %q", tt.in, req.Method)
			}
			continue
		}
		if perr == nil || perr.Code != tt.wantCode {
			t.Errorf("%s: got %v, want code %d", tt.in, perr, tt.wantCode)
		}
	}
}

func TestParseRequest_Notification(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"a"}`))
	if perr != nil {
		t.Fatal(perr)
	}
	if !req.IsNotification() {
		t.Error("expected notification")
	}

	req, _ = ParseRequest([]byte(`{"jsonrpc":"2.0","method":"a","id":null}`))
	if req.IsNotification() {
		t.Error("null id is not a notification")
	}
}
