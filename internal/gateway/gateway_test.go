package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/park285/connect4-arena/internal/match"
	"github.com/park285/connect4-arena/internal/msgcat"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

type recorder struct {
	mu   sync.Mutex
	sent map[string][]map[string]any
}

func newRecorder() *recorder { return &recorder{sent: make(map[string][]map[string]any)} }

func (r *recorder) Send(sessionID string, msg any) {
	raw, _ := json.Marshal(msg)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[sessionID] = append(r.sent[sessionID], m)
}

func (r *recorder) Broadcast(string, any) {}
func (r *recorder) Join(string, string) {}
func (r *recorder) IsLive(string) bool { return true }

func (r *recorder) last(sessionID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.sent[sessionID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func newTestGateway(t *testing.T) (*Gateway, *recorder) {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)
	rec := newRecorder()
	fc := clockwork.NewFakeClock()
	svc := match.NewService(match.NewManager(match.NewMemoryStore(), fc), rec, timers.New(fc), match.DefaultOptions())
	t.Cleanup(svc.Close)
	return New(svc, rec, cat), rec
}

func TestHandle_CreateThenJoinUnknown(t *testing.T) {
	g, rec := newTestGateway(t)
	ctx := context.Background()

	g.Handle(ctx, "s1", []byte(`{"type":"create_match","username":"alice"}`))
	created := rec.last("s1")
	require.Equal(t, matchdto.TypeMatchCreated, created["type"])
	require.Len(t, created["matchId"], 6)

	g.Handle(ctx, "s2", []byte(`{"type":"join_match","matchId":"zzzzzz","username":"bob"}`))
	errMsg := rec.last("s2")
	require.Equal(t, matchdto.TypeError, errMsg["type"])
	require.Equal(t, match.CodeNotFound, errMsg["code"])
	require.Contains(t, errMsg["error"], "ZZZZZZ")
}

func TestHandle_ErrorsGoOnlyToSender(t *testing.T) {
	g, rec := newTestGateway(t)
	ctx := context.Background()

	g.Handle(ctx, "s1", []byte(`{"type":"create_match","username":"alice"}`))
	id := rec.last("s1")["matchId"].(string)
	g.Handle(ctx, "s2", []byte(`{"type":"join_match","matchId":"`+id+`","username":"bob"}`))
	before := len(rec.sent["s1"])

	g.Handle(ctx, "s2", []byte(`{"type":"make_move","matchId":"`+id+`","column":3}`))
	got := rec.last("s2")
	require.Equal(t, matchdto.TypeError, got["type"])
	require.Equal(t, match.CodeTurnViolation, got["code"])
	require.Equal(t, before, len(rec.sent["s1"]), "error leaked to another session")
}

func TestHandle_MalformedAndUnknown(t *testing.T) {
	g, rec := newTestGateway(t)
	ctx := context.Background()

	g.Handle(ctx, "s1", []byte(`{not json`))
	require.Equal(t, codeBadMessage, rec.last("s1")["code"])

	g.Handle(ctx, "s1", []byte(`{"type":"teleport"}`))
	got := rec.last("s1")
	require.Equal(t, codeUnknownType, got["code"])
	require.True(t, strings.Contains(got["error"].(string), "teleport"))

	g.Handle(ctx, "s1", []byte(`{"type":"make_move","matchId":"ABCDEF"}`))
	require.Equal(t, match.CodeInvalidColumn, rec.last("s1")["code"])
}

type failingMatches struct{ Matches }

func (failingMatches) Create(context.Context, string, string) (*match.Match, error) {
	return nil, context.DeadlineExceeded
}

func TestHandle_InternalErrorIsGeneric(t *testing.T) {
	cat, _ := msgcat.New("")
	rec := newRecorder()
	g := New(failingMatches{}, rec, cat)
	g.Handle(context.Background(), "s1", []byte(`{"type":"create_match","username":"alice"}`))
	got := rec.last("s1")
	require.Equal(t, codeInternal, got["code"])
	require.NotContains(t, got["error"], "deadline")
}
