package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/match"
	"github.com/park285/connect4-arena/internal/msgcat"
	"github.com/park285/connect4-arena/internal/obslog"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

// Matches is the part of match.Service the gateway drives.
type Matches interface {
	Create(ctx context.Context, sessionID, username string) (*match.Match, error)
	Join(ctx context.Context, sessionID, matchID, username string) (*match.Match, error)
	Ready(ctx context.Context, sessionID, matchID string) (*match.Match, error)
	SetReady(ctx context.Context, sessionID, matchID string) (*match.Match, error)
	Move(ctx context.Context, sessionID, matchID string, column int) (*match.Match, error)
	Resign(ctx context.Context, sessionID, matchID string) (*match.Match, error)
	Disconnect(ctx context.Context, sessionID string)
}

// Sender delivers a message to one session.
type Sender interface {
	Send(sessionID string, msg any)
}

const (
	codeBadMessage  = "bad_message"
	codeUnknownType = "unknown_type"
	codeInternal    = "internal"
)

// Gateway decodes client frames, runs them against the match service and
// answers failures with an error message to the sender only.
type Gateway struct {
	matches Matches
	out     Sender
	cat     *msgcat.Catalog
}

func New(matches Matches, out Sender, cat *msgcat.Catalog) *Gateway {
	return &Gateway{matches: matches, out: out, cat: cat}
}

// Handle processes one inbound frame from sessionID.
func (g *Gateway) Handle(ctx context.Context, sessionID string, raw []byte) {
	var in matchdto.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		obslog.L().Debug("ws_bad_frame", zap.String("session_id", sessionID), zap.Error(err))
		g.reject(sessionID, codeBadMessage, nil)
		return
	}
	g.Dispatch(ctx, sessionID, in)
}

// Dispatch runs a decoded message.
func (g *Gateway) Dispatch(ctx context.Context, sessionID string, in matchdto.Inbound) {
	var err error
	matchID := match.NormalizeID(in.MatchID)
	switch strings.TrimSpace(in.Type) {
	case matchdto.TypeCreateMatch:
		_, err = g.matches.Create(ctx, sessionID, in.Username)
	case matchdto.TypeJoinMatch:
		_, err = g.matches.Join(ctx, sessionID, matchID, in.Username)
	case matchdto.TypePlayerReady:
		_, err = g.matches.Ready(ctx, sessionID, matchID)
	case matchdto.TypePlayerSetReady:
		_, err = g.matches.SetReady(ctx, sessionID, matchID)
	case matchdto.TypeMakeMove:
		if in.Column == nil {
			err = match.ErrInvalidColumn
			break
		}
		_, err = g.matches.Move(ctx, sessionID, matchID, *in.Column)
	case matchdto.TypeResign:
		_, err = g.matches.Resign(ctx, sessionID, matchID)
	default:
		g.reject(sessionID, codeUnknownType, map[string]any{"Type": in.Type})
		return
	}
	if err != nil {
		g.fail(sessionID, matchID, in.Type, err)
	}
}

// Disconnect forwards a closed connection.
func (g *Gateway) Disconnect(ctx context.Context, sessionID string) {
	g.matches.Disconnect(ctx, sessionID)
}

func (g *Gateway) fail(sessionID, matchID, msgType string, err error) {
	code := match.CodeOf(err)
	if code == "" {
		obslog.L().Error("ws_request_error",
			zap.String("session_id", sessionID),
			zap.String("match_id", matchID),
			zap.String("type", msgType),
			zap.Error(err),
		)
		g.reject(sessionID, codeInternal, nil)
		return
	}
	obslog.L().Debug("ws_request_rejected",
		zap.String("session_id", sessionID),
		zap.String("match_id", matchID),
		zap.String("type", msgType),
		zap.String("code", code),
	)
	g.reject(sessionID, code, map[string]any{"MatchID": matchID})
}

func (g *Gateway) reject(sessionID, code string, data map[string]any) {
	fallback := code
	if code == codeInternal {
		fallback = "internal error"
	}
	text := g.cat.Text("errors."+code, data, fallback)
	g.out.Send(sessionID, matchdto.NewError(code, text))
}
