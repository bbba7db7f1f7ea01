package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/rpchost/events"
	"github.com/mnehpets/rpchost/jsonrpc"
	"github.com/mnehpets/rpchost/middleware"
	"github.com/mnehpets/rpchost/plugin"
)

type fakeChannel struct {
	reply  string
	err    error
	closed *atomic.Int32
}

func (c *fakeChannel) RPC(context.Context, string) (string, error) { return c.reply, c.err }
func (c *fakeChannel) Close() error {
	c.closed.Add(1)
	return nil
}

type fakeFactory struct {
	opens   atomic.Int32
	closes  atomic.Int32
	openErr error
	reply   string
	rpcErr  error
}

func (f *fakeFactory) Open(context.Context) (plugin.Channel, error) {
	f.opens.Add(1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeChannel{reply: f.reply, err: f.rpcErr, closed: &f.closes}, nil
}

func post(h http.Handler, body string, auth ...string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if len(auth) == 2 {
		r.SetBasicAuth(auth[0], auth[1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := middleware.HashPassword(pw)
	require.NoError(t, err)
	return h
}

func TestGateway_RelaysVerbatim(t *testing.T) {
	f := &fakeFactory{reply: `{"id":1,"jsonrpc":"2.0","result":"ok"}`}
	g := New(f, nil)

	w := post(g.Handler(), `{"jsonrpc":"2.0","method":"x","id":1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, f.reply, w.Body.String())
	assert.EqualValues(t, 1, f.opens.Load())
	assert.EqualValues(t, 1, f.closes.Load(), "channel must be closed after each request")
}

func TestGateway_ChannelFailures(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeFactory
		want string
	}{
		{"open", &fakeFactory{openErr: errors.New("connection refused")}, "connection refused"},
		{"rpc", &fakeFactory{rpcErr: errors.New("broken pipe")}, "broken pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(New(tt.f, nil).Handler(), `{}`)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestGateway_Authentication(t *testing.T) {
	f := &fakeFactory{reply: `{}`}
	g := New(f, middleware.NewCredentialStore("admin", mustHash(t, "pw")))
	h := g.Handler()

	w := post(h, `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, `Basic realm="rpchost"`, w.Header().Get("WWW-Authenticate"))

	w = post(h, `{}`, "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.opens.Load(), "plugin host contacted without valid credentials")

	w = post(h, `{}`, "admin", "pw")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, f.opens.Load())
}

func TestGateway_CredentialsFollowEvents(t *testing.T) {
	bus := events.New()
	f := &fakeFactory{reply: `{}`}
	g := New(f, middleware.NewCredentialStore("admin", mustHash(t, "old")))
	unsubscribe := g.Subscribe(bus)
	h := g.Handler()

	require.NoError(t, bus.Publish(context.Background(), events.TopicAuthChanged, events.AuthChanged{UserName: "admin", HashedPassword: mustHash(t, "new")}))
	assert.Equal(t, http.StatusUnauthorized, post(h, `{}`, "admin", "old").Code)
	assert.Equal(t, http.StatusOK, post(h, `{}`, "admin", "new").Code)

	// Empty values are ignored.
	require.NoError(t, bus.Publish(context.Background(), events.TopicAuthChanged, events.AuthChanged{}))
	assert.Equal(t, http.StatusOK, post(h, `{}`, "admin", "new").Code)

	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), events.TopicAuthChanged, events.AuthChanged{UserName: "x", HashedPassword: mustHash(t, "y")}))
	assert.Equal(t, http.StatusOK, post(h, `{}`, "admin", "new").Code)
}

func TestGateway_EventEnablesAuthentication(t *testing.T) {
	bus := events.New()
	f := &fakeFactory{reply: `{}`}
	g := New(f, nil)
	g.Subscribe(bus)
	h := g.Handler()

	assert.Equal(t, http.StatusOK, post(h, `{}`).Code, "no credentials accepts every request")
	assert.Equal(t, http.StatusOK, post(h, `{}`, "anyone", "anything").Code)

	require.NoError(t, bus.Publish(context.Background(), events.TopicAuthChanged, events.AuthChanged{UserName: "admin", HashedPassword: mustHash(t, "pw")}))
	assert.Equal(t, http.StatusUnauthorized, post(h, `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(h, `{}`, "anyone", "anything").Code)
	assert.Equal(t, http.StatusOK, post(h, `{}`, "admin", "pw").Code)
	assert.EqualValues(t, 3, f.opens.Load())
}

func TestGateway_MethodNotAllowed(t *testing.T) {
	g := New(&fakeFactory{}, nil)
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// End to end over a real plugin channel with a dispatcher behind it.
func TestGateway_PluginHost(t *testing.T) {
	reg, err := jsonrpc.NewRegistry(jsonrpc.Static("math",
		jsonrpc.Func2("math.add", jsonrpc.Arg[int]("a"), jsonrpc.Arg[int]("b"), func(_ context.Context, a, b int) (int, error) { return a + b, nil }),
	))
	require.NoError(t, err)
	d := jsonrpc.NewDispatcher(reg)

	srv := plugin.NewServer("tcp", "127.0.0.1:0", d.RPC)
	require.NoError(t, srv.Open())
	defer srv.Close()

	g := New(&plugin.Dialer{Network: "tcp", Address: srv.Addr().String(), Timeout: time.Second}, nil)
	ts := httptest.NewServer(g.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL, "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"math.add","params":[2,3],"id":7}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":7,"jsonrpc":"2.0","result":5}`, string(b))

	// Notifications come back empty.
	resp2, err := http.Post(ts.URL, "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"math.add","params":[2,3]}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	b, _ = io.ReadAll(resp2.Body)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Empty(t, b)
}
