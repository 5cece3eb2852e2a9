package wshub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/connect4-arena/internal/gateway"
	"github.com/park285/connect4-arena/internal/match"
	"github.com/park285/connect4-arena/internal/msgcat"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/internal/wshub"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// readType reads frames until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var got map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &got))
		if got["type"] == want {
			return got
		}
	}
}

func newStack(t *testing.T) (*wshub.Hub, *httptest.Server) {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)
	hub := wshub.New(wshub.Options{})
	fc := clockwork.NewFakeClock()
	svc := match.NewService(match.NewManager(match.NewMemoryStore(), fc), hub, timers.New(fc), match.DefaultOptions())
	t.Cleanup(svc.Close)
	hub.Bind(gateway.New(svc, hub, cat))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestHub_CreateJoinOverWebSocket(t *testing.T) {
	hub, srv := newStack(t)
	alice := dial(t, srv)
	bob := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, alice, map[string]any{"type": matchdto.TypeCreateMatch, "username": "alice"})
	created := readType(t, alice, matchdto.TypeMatchCreated)
	id, _ := created["matchId"].(string)
	require.Len(t, id, 6)

	send(t, bob, map[string]any{"type": matchdto.TypeJoinMatch, "matchId": strings.ToLower(id), "username": "bob"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		state := readType(t, conn, matchdto.TypeGameState)
		m := state["match"].(map[string]any)
		require.Equal(t, id, m["matchId"])
		require.Len(t, m["players"], 2)
	}

	send(t, bob, map[string]any{"type": matchdto.TypeMakeMove, "matchId": id, "column": 3})
	errMsg := readType(t, bob, matchdto.TypeError)
	require.Equal(t, match.CodeTurnViolation, errMsg["code"])
}

func TestHub_CloseUnregistersSession(t *testing.T) {
	hub, srv := newStack(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

type sessions struct {
	mu  sync.Mutex
	ids []string
}

func (s *sessions) Handle(_ context.Context, sessionID string, _ []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ids {
		if id == sessionID {
			return
		}
	}
	s.ids = append(s.ids, sessionID)
}

func (s *sessions) Disconnect(context.Context, string) {}

func (s *sessions) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestHub_BroadcastReachesGroupOnly(t *testing.T) {
	hub := wshub.New(wshub.Options{})
	seen := &sessions{}
	hub.Bind(seen)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	a, b, c := dial(t, srv), dial(t, srv), dial(t, srv)
	for _, conn := range []*websocket.Conn{a, b, c} {
		send(t, conn, map[string]any{"type": "hello"})
	}
	require.Eventually(t, func() bool { return len(seen.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	ids := seen.snapshot()
	for _, id := range ids {
		require.True(t, hub.IsLive(id))
	}
	require.False(t, hub.IsLive("nobody"))

	// Map each connection to its session by a direct Send.
	byConn := make(map[*websocket.Conn]string)
	for _, id := range ids {
		hub.Send(id, map[string]string{"type": "whoami", "session": id})
	}
	for _, conn := range []*websocket.Conn{a, b, c} {
		got := readType(t, conn, "whoami")
		byConn[conn] = got["session"].(string)
	}

	hub.Join(byConn[a], "ROOM01")
	hub.Join(byConn[b], "ROOM01")
	hub.Broadcast("ROOM01", map[string]string{"type": "news"})
	hub.Send(byConn[c], map[string]string{"type": "private"})

	readType(t, a, "news")
	readType(t, b, "news")
	got := readType(t, c, "private")
	require.Equal(t, "private", got["type"])
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := wshub.New(wshub.Options{AllowedOrigins: []string{"play.example.com"}})
	hub.Bind(&sessions{})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hdr := http.Header{}
	hdr.Set("Origin", "https://evil.example.net")
	_, resp, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{HTTPHeader: hdr})
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	hdr.Set("Origin", "https://play.example.com")
	conn, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{HTTPHeader: hdr})
	require.NoError(t, err)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
