package c4client_test

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/connect4-arena/internal/c4client"
	"github.com/park285/connect4-arena/internal/gateway"
	"github.com/park285/connect4-arena/internal/httpapi"
	"github.com/park285/connect4-arena/internal/match"
	"github.com/park285/connect4-arena/internal/msgcat"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/internal/wshub"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

type arena struct {
	svc  *match.Service
	ws   string
	http *c4client.Client
}

func newArena(t *testing.T) *arena {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)
	hub := wshub.New(wshub.Options{})
	fc := clockwork.NewFakeClock()
	svc := match.NewService(match.NewManager(match.NewMemoryStore(), fc), hub, timers.New(fc), match.DefaultOptions())
	t.Cleanup(svc.Close)
	hub.Bind(gateway.New(svc, hub, cat))
	wsSrv := httptest.NewServer(hub)
	t.Cleanup(wsSrv.Close)

	api := httpapi.New(svc, nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = api.Serve(ln) }()
	t.Cleanup(func() { _ = api.Shutdown(context.Background()) })
	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}

	return &arena{
		svc:  svc,
		ws:   "ws" + strings.TrimPrefix(wsSrv.URL, "http"),
		http: c4client.NewClient("http://arena.test", c4client.WithHTTPClient(hc), c4client.WithTimeout(2*time.Second)),
	}
}

// inbox collects frames by type.
type inbox chan c4client.Frame

func connect(t *testing.T, url string) (*c4client.WebSocket, inbox) {
	t.Helper()
	ws := c4client.NewWebSocket(url, 0)
	in := make(inbox, 64)
	ws.OnMessage(func(f c4client.Frame) { in <- f })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Connect(ctx))
	t.Cleanup(func() { _ = ws.Close(context.Background()) })
	return ws, in
}

func (in inbox) await(t *testing.T, typ string) c4client.Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-in:
			if f.Type == typ {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame", typ)
		}
	}
}

func TestClient_HTTPRoutes(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()

	require.NoError(t, a.http.Health(ctx))

	id, err := a.http.ReserveID(ctx)
	require.NoError(t, err)
	require.Len(t, id, 6)

	_, err = a.http.Match(ctx, "NOPE00")
	var se *c4client.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, fasthttp.StatusNotFound, se.Status)
}

func TestClient_PlaysOverWebSocket(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()

	alice, aliceIn := connect(t, a.ws)
	bob, bobIn := connect(t, a.ws)
	require.Equal(t, c4client.StateConnected, alice.State())

	require.NoError(t, alice.Send(ctx, matchdto.Inbound{Type: matchdto.TypeCreateMatch, Username: "alice"}))
	var created matchdto.MatchCreated
	require.NoError(t, aliceIn.await(t, matchdto.TypeMatchCreated).Decode(&created))

	require.NoError(t, bob.Send(ctx, matchdto.Inbound{Type: matchdto.TypeJoinMatch, MatchID: created.MatchID, Username: "bob"}))
	var state matchdto.GameState
	require.NoError(t, bobIn.await(t, matchdto.TypeGameState).Decode(&state))
	require.Len(t, state.Match.Players, 2)
	aliceIn.await(t, matchdto.TypeGameState)

	for _, c := range []*c4client.WebSocket{alice, bob} {
		require.NoError(t, c.Send(ctx, matchdto.Inbound{Type: matchdto.TypePlayerSetReady, MatchID: created.MatchID}))
	}
	aliceIn.await(t, matchdto.TypeCountdownStart)

	snap, err := a.http.Match(ctx, created.MatchID)
	require.NoError(t, err)
	require.Equal(t, string(match.StatusCountdown), snap.Status)
}

func TestClient_SendWhileClosed(t *testing.T) {
	ws := c4client.NewWebSocket("ws://127.0.0.1:1", 0)
	err := ws.Send(context.Background(), map[string]string{"type": "resign"})
	require.ErrorIs(t, err, c4client.ErrNotConnected)
	require.NoError(t, ws.Close(context.Background()))
}
