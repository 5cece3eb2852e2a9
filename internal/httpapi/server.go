package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/match"
	"github.com/park285/connect4-arena/internal/obslog"
)

// Snapshots reads stored matches.
type Snapshots interface {
	Snapshot(ctx context.Context, matchID string) (*match.Match, error)
}

// Pinger reports backend health. A nil Pinger is always healthy.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	matches Snapshots
	health  Pinger
	timeout time.Duration
	srv     *fasthttp.Server
}

func New(matches Snapshots, health Pinger) *Server {
	s := &Server{matches: matches, health: health, timeout: 3 * time.Second}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "connect4-arena",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handle routes a request.
func (s *Server) Handle(rc *fasthttp.RequestCtx) {
	if !rc.IsGet() {
		writeJSON(rc, fasthttp.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	path := string(rc.Path())
	switch {
	case path == "/healthz":
		s.healthz(rc)
	case path == "/match/create":
		s.reserveID(rc)
	case strings.HasPrefix(path, "/matches/"):
		s.snapshot(rc, strings.TrimPrefix(path, "/matches/"))
	default:
		writeJSON(rc, fasthttp.StatusNotFound, errorBody{Error: "not found"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) healthz(rc *fasthttp.RequestCtx) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			obslog.L().Warn("healthz_store_down", zap.Error(err))
			writeJSON(rc, fasthttp.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(rc, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

// reserveID hands out a fresh id without creating a match.
func (s *Server) reserveID(rc *fasthttp.RequestCtx) {
	id, err := match.NewID()
	if err != nil {
		obslog.L().Error("match_id_generate_error", zap.Error(err))
		writeJSON(rc, fasthttp.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	writeJSON(rc, fasthttp.StatusOK, map[string]string{"matchId": id})
}

func (s *Server) snapshot(rc *fasthttp.RequestCtx, rawID string) {
	id := match.NormalizeID(rawID)
	if id == "" || strings.Contains(id, "/") {
		writeJSON(rc, fasthttp.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	rec, err := s.matches.Snapshot(ctx, id)
	if err != nil {
		if errors.Is(err, match.ErrNotFound) {
			writeJSON(rc, fasthttp.StatusNotFound, errorBody{Error: "match not found"})
			return
		}
		obslog.L().Error("match_snapshot_error", zap.String("match_id", id), zap.Error(err))
		writeJSON(rc, fasthttp.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	writeJSON(rc, fasthttp.StatusOK, rec.View())
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetStatusCode(status)
	rc.SetContentType("application/json")
	rc.SetBody(body)
}
