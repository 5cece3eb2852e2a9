package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/obslog"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

// Transport delivers messages to sessions and to a match's broadcast group.
type Transport interface {
	Send(sessionID string, msg any)
	Broadcast(matchID string, msg any)
	// Join adds the session to the match's broadcast group.
	Join(sessionID, matchID string)
	// IsLive reports whether the session still has an open connection.
	IsLive(sessionID string) bool
}

// DisconnectPolicy decides what happens to the turn timer while the turn
// holder is offline.
type DisconnectPolicy string

const (
	// TurnTimerContinue keeps the turn timer running; missed turns and the
	// reconnect grace window race and whichever commits first wins.
	TurnTimerContinue DisconnectPolicy = "continue"
	// TurnTimerSuspend stops the turn timer while the turn holder is offline
	// and re-arms it when they reattach.
	TurnTimerSuspend DisconnectPolicy = "suspend"
)

type Options struct {
	TurnDuration          time.Duration
	CountdownDuration     time.Duration
	NoticeDelay           time.Duration
	ReconnectGrace        time.Duration
	MaxMissedTurns        int
	TurnTimerOnDisconnect DisconnectPolicy
}

func DefaultOptions() Options {
	return Options{
		TurnDuration:          15 * time.Second,
		CountdownDuration:     5 * time.Second,
		NoticeDelay:           3 * time.Second,
		ReconnectGrace:        45 * time.Second,
		MaxMissedTurns:        2,
		TurnTimerOnDisconnect: TurnTimerContinue,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TurnDuration <= 0 {
		o.TurnDuration = d.TurnDuration
	}
	if o.CountdownDuration <= 0 {
		o.CountdownDuration = d.CountdownDuration
	}
	if o.NoticeDelay <= 0 {
		o.NoticeDelay = d.NoticeDelay
	}
	if o.ReconnectGrace <= 0 {
		o.ReconnectGrace = d.ReconnectGrace
	}
	if o.MaxMissedTurns <= 0 {
		o.MaxMissedTurns = d.MaxMissedTurns
	}
	if o.TurnTimerOnDisconnect != TurnTimerSuspend {
		o.TurnTimerOnDisconnect = TurnTimerContinue
	}
	return o
}

const callbackTimeout = 5 * time.Second

// Service is the transport-facing entry point. Each operation holds the
// match's lock across the commit, the broadcasts it causes and the timer
// changes, so members of a match observe committed states in order.
type Service struct {
	mgr    *Manager
	tr     Transport
	timers *timers.Table
	opts   Options
	locks  *keyLock

	Turns      *TurnTimers
	Supervisor *Supervisor
}

func NewService(mgr *Manager, tr Transport, tbl *timers.Table, opts Options) *Service {
	if tbl == nil {
		tbl = timers.New(mgr.clock)
	}
	s := &Service{
		mgr:    mgr,
		tr:     tr,
		timers: tbl,
		opts:   opts.withDefaults(),
		locks:  newKeyLock(),
	}
	s.Turns = &TurnTimers{svc: s}
	s.Supervisor = &Supervisor{svc: s}
	return s
}

// Manager exposes the underlying lifecycle for read paths.
func (s *Service) Manager() *Manager { return s.mgr }

// Close cancels every pending timer.
func (s *Service) Close() { s.timers.Close() }

// Create opens a match for the session and replies with its id.
func (s *Service) Create(ctx context.Context, sessionID, username string) (*Match, error) {
	rec, err := s.mgr.CreateMatch(ctx, sessionID, username)
	if err != nil {
		return nil, err
	}
	s.tr.Join(sessionID, rec.ID)
	s.tr.Send(sessionID, matchdto.NewMatchCreated(rec.ID))
	return rec, nil
}

// Join seats the session and shows both players the new state.
func (s *Service) Join(ctx context.Context, sessionID, matchID, username string) (*Match, error) {
	matchID = NormalizeID(matchID)
	unlock := s.locks.Lock(matchID)
	defer unlock()

	rec, err := s.mgr.JoinMatch(ctx, matchID, sessionID, username)
	if err != nil {
		return nil, err
	}
	s.tr.Join(sessionID, rec.ID)
	s.tr.Broadcast(rec.ID, matchdto.NewGameState(rec.View()))
	return rec, nil
}

// Ready handles a page load: the session may reclaim a stale seat, and it
// receives the current snapshot.
func (s *Service) Ready(ctx context.Context, sessionID, matchID string) (*Match, error) {
	matchID = NormalizeID(matchID)
	unlock := s.locks.Lock(matchID)
	defer unlock()

	rec, err := s.Supervisor.OnReconnectClaim(ctx, matchID, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.PlayerBySession(sessionID) != nil {
		s.tr.Join(sessionID, rec.ID)
	}
	s.tr.Send(sessionID, matchdto.NewGameState(rec.View()))
	return rec, nil
}

// SetReady toggles readiness and drives the countdown.
func (s *Service) SetReady(ctx context.Context, sessionID, matchID string) (*Match, error) {
	matchID = NormalizeID(matchID)
	unlock := s.locks.Lock(matchID)
	defer unlock()

	rec, err := s.mgr.SetPlayerReady(ctx, matchID, sessionID)
	if err != nil {
		return nil, err
	}
	s.tr.Broadcast(rec.ID, matchdto.NewGameState(rec.View()))

	switch rec.Status {
	case StatusCountdown:
		s.tr.Broadcast(rec.ID, matchdto.NewCountdownStart(seconds(s.opts.CountdownDuration)))
		id := rec.ID
		s.timers.Arm(timers.Countdown, id, s.opts.CountdownDuration, func() { s.completeCountdown(id) })
		obslog.L().Info("countdown_start", zap.String("match_id", id), zap.Duration("duration", s.opts.CountdownDuration))
	case StatusWaiting:
		if s.timers.Disarm(timers.Countdown, rec.ID) {
			obslog.L().Info("countdown_cancel", zap.String("match_id", rec.ID))
		}
	}
	return rec, nil
}

func (s *Service) completeCountdown(matchID string) {
	unlock := s.locks.Lock(matchID)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	rec, err := s.mgr.StartMatch(ctx, matchID)
	if err != nil {
		logCallbackErr("countdown_complete", matchID, err)
		return
	}
	s.tr.Broadcast(rec.ID, matchdto.NewGameState(rec.View()))
	s.Turns.Arm(rec)
}

// Move applies a drop and either ends the match or hands over the turn.
func (s *Service) Move(ctx context.Context, sessionID, matchID string, column int) (*Match, error) {
	matchID = NormalizeID(matchID)
	unlock := s.locks.Lock(matchID)
	defer unlock()

	rec, err := s.mgr.ApplyMove(ctx, matchID, sessionID, column)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusFinished {
		s.endMatch(rec)
		return rec, nil
	}
	s.tr.Broadcast(rec.ID, matchdto.NewBoardUpdate(matchdto.Board(rec.Board), rec.Turn))
	s.Turns.Arm(rec)
	return rec, nil
}

// Resign ends the match in the opponent's favour. A missing match is a no-op.
func (s *Service) Resign(ctx context.Context, sessionID, matchID string) (*Match, error) {
	matchID = NormalizeID(matchID)
	unlock := s.locks.Lock(matchID)
	defer unlock()

	rec, err := s.mgr.Resign(ctx, matchID, sessionID)
	if err != nil || rec == nil {
		return rec, err
	}
	s.endMatch(rec)
	return rec, nil
}

// Disconnect is called by the transport when a session's connection closes.
// Every match the session was seated in is checked; only in-progress ones
// are affected.
func (s *Service) Disconnect(ctx context.Context, sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	ids, err := s.mgr.store.MatchIDsBySession(ctx, sessionID)
	if err != nil {
		obslog.L().Warn("disconnect_lookup_error", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	for _, matchID := range ids {
		unlock := s.locks.Lock(matchID)
		s.Supervisor.OnDisconnect(ctx, matchID, sessionID)
		unlock()
	}
}

// Snapshot returns the stored match.
func (s *Service) Snapshot(ctx context.Context, matchID string) (*Match, error) {
	return s.mgr.Get(ctx, NormalizeID(matchID))
}

// endMatch stops every timer of a finished match and announces the result.
// The caller holds the match lock.
func (s *Service) endMatch(rec *Match) {
	n := s.timers.DisarmScope(rec.ID)
	obslog.L().Info("match_over",
		zap.String("match_id", rec.ID),
		zap.String("winner", rec.Winner),
		zap.String("reason", string(rec.ReasonForWin)),
		zap.Int("timers_cancelled", n),
	)
	s.tr.Broadcast(rec.ID, gameOverMessage(rec))
}

func logCallbackErr(event, matchID string, err error) {
	if IsSilent(err) {
		obslog.L().Debug(event+"_aborted", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	obslog.L().Warn(event+"_error", zap.String("match_id", matchID), zap.Error(err))
}

func seconds(d time.Duration) int { return int(d.Round(time.Second) / time.Second) }

func seatKey(matchID string, seat int) string { return fmt.Sprintf("%s:%d", matchID, seat) }
