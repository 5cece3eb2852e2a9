package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/connect4-arena/internal/match"
)

func do(s *Server, method, uri string) *fasthttp.RequestCtx {
	var rc fasthttp.RequestCtx
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(uri)
	s.Handle(&rc)
	return &rc
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthz(t *testing.T) {
	s := New(nil, nil)
	rc := do(s, fasthttp.MethodGet, "/healthz")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	require.JSONEq(t, `{"status":"ok"}`, string(rc.Response.Body()))

	s = New(nil, downPinger{})
	rc = do(s, fasthttp.MethodGet, "/healthz")
	require.Equal(t, fasthttp.StatusServiceUnavailable, rc.Response.StatusCode())
}

func TestReserveID(t *testing.T) {
	s := New(nil, nil)
	rc := do(s, fasthttp.MethodGet, "/match/create")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rc.Response.Body(), &body))
	require.Regexp(t, `^[A-Z0-9]{6}$`, body["matchId"])
}

func TestSnapshot(t *testing.T) {
	mgr := match.NewManager(match.NewMemoryStore(), clockwork.NewFakeClock())
	svc := match.NewService(mgr, nopTransport{}, nil, match.DefaultOptions())
	t.Cleanup(svc.Close)
	rec, err := svc.Create(context.Background(), "s1", "alice")
	require.NoError(t, err)

	s := New(svc, nil)
	rc := do(s, fasthttp.MethodGet, "/matches/"+rec.ID)
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var got map[string]any
	require.NoError(t, json.Unmarshal(rc.Response.Body(), &got))
	require.Equal(t, rec.ID, got["matchId"])
	require.Equal(t, "waiting", got["status"])

	rc = do(s, fasthttp.MethodGet, "/matches/NOPE00")
	require.Equal(t, fasthttp.StatusNotFound, rc.Response.StatusCode())

	rc = do(s, fasthttp.MethodPost, "/matches/"+rec.ID)
	require.Equal(t, fasthttp.StatusMethodNotAllowed, rc.Response.StatusCode())

	rc = do(s, fasthttp.MethodGet, "/elsewhere")
	require.Equal(t, fasthttp.StatusNotFound, rc.Response.StatusCode())
}

func TestServeOverListener(t *testing.T) {
	s := New(nil, nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	client := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://connect4.test/healthz")
	require.NoError(t, client.DoTimeout(req, resp, 2*time.Second))
	require.Equal(t, fasthttp.StatusOK, resp.StatusCode())
}

type nopTransport struct{}

func (nopTransport) Send(string, any) {}
func (nopTransport) Broadcast(string, any) {}
func (nopTransport) Join(string, string) {}
func (nopTransport) IsLive(string) bool { return true }
