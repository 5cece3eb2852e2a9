package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/obslog"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

// Supervisor reacts to connections coming and going. Notice and forfeit
// timers are keyed by match and seat, so both players may be pending at
// once. Callers hold the match lock.
type Supervisor struct {
	svc *Service
}

// OnDisconnect marks the session's seat in matchID offline when that match
// is in progress, then schedules the opponent notice and the forfeit.
func (sv *Supervisor) OnDisconnect(ctx context.Context, matchID, sessionID string) {
	s := sv.svc
	rec, err := s.mgr.MarkOffline(ctx, matchID, sessionID)
	if err != nil {
		obslog.L().Warn("disconnect_mark_error", zap.String("match_id", matchID), zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if rec == nil {
		obslog.L().Debug("disconnect_outside_match", zap.String("match_id", matchID), zap.String("session_id", sessionID))
		return
	}
	p := rec.PlayerBySession(sessionID)
	if p == nil {
		return
	}
	id, seat := rec.ID, p.PlayerNumber
	key := seatKey(id, seat)
	s.timers.Arm(timers.Notice, key, s.opts.NoticeDelay, func() { sv.notice(id, seat) })
	s.timers.Arm(timers.Forfeit, key, s.opts.ReconnectGrace, func() { sv.forfeit(id, seat) })

	if s.opts.TurnTimerOnDisconnect == TurnTimerSuspend && rec.Turn == sessionID {
		if s.Turns.Disarm(id) {
			obslog.L().Info("turn_timer_suspended", zap.String("match_id", id), zap.Int("turn_number", rec.TurnNumber))
		}
	}
	obslog.L().Info("reconnect_grace_start",
		zap.String("match_id", id),
		zap.Int("seat", seat),
		zap.Duration("grace", s.opts.ReconnectGrace),
	)
}

func (sv *Supervisor) notice(matchID string, seat int) {
	s := sv.svc
	unlock := s.locks.Lock(matchID)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	rec, err := s.mgr.Get(ctx, matchID)
	if err != nil {
		logCallbackErr("disconnect_notice", matchID, err)
		return
	}
	if rec.Status != StatusInProgress {
		return
	}
	if p := rec.PlayerByNumber(seat); p == nil || p.ConnectionState != Offline {
		return
	}
	s.tr.Broadcast(matchID, matchdto.NewOpponentDisconnected())
}

func (sv *Supervisor) forfeit(matchID string, seat int) {
	s := sv.svc
	unlock := s.locks.Lock(matchID)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	rec, err := s.mgr.ForfeitDisconnected(ctx, matchID, seat)
	if err != nil {
		logCallbackErr("disconnect_forfeit", matchID, err)
		return
	}
	s.endMatch(rec)
}

// OnReconnectClaim reattaches sessionID to a stale seat of matchID if there
// is one. A reattached seat loses its pending notice and forfeit timers; the
// forfeit also re-checks the offline flag when it fires.
func (sv *Supervisor) OnReconnectClaim(ctx context.Context, matchID, sessionID string) (*Match, error) {
	s := sv.svc
	rec, changed, err := s.mgr.ReattachSession(ctx, matchID, sessionID, s.tr.IsLive)
	if err != nil {
		return nil, err
	}
	if !changed {
		return rec, nil
	}
	p := rec.PlayerBySession(sessionID)
	if p == nil {
		return rec, nil
	}
	key := seatKey(rec.ID, p.PlayerNumber)
	s.timers.Disarm(timers.Forfeit, key)
	s.timers.Disarm(timers.Notice, key)

	if len(rec.Players) == 2 && rec.Status == StatusInProgress {
		s.tr.Broadcast(rec.ID, matchdto.NewOpponentReconnected())
	}
	s.tr.Join(sessionID, rec.ID)

	if s.opts.TurnTimerOnDisconnect == TurnTimerSuspend && rec.Status == StatusInProgress &&
		rec.Turn == sessionID && !s.Turns.Pending(rec.ID) {
		s.Turns.Arm(rec)
		obslog.L().Info("turn_timer_resumed", zap.String("match_id", rec.ID), zap.Int("turn_number", rec.TurnNumber))
	}
	return rec, nil
}
