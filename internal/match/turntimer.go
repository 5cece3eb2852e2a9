package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/obslog"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

// TurnTimers runs the single per-match turn clock. Callers hold the match
// lock.
type TurnTimers struct {
	svc *Service
}

// Arm starts a fresh turn timer for rec's current turn, replacing any
// previous one, and tells both players its length. It does nothing unless
// rec is in progress; under the suspend policy it leaves the timer off while
// the turn holder is offline.
func (t *TurnTimers) Arm(rec *Match) {
	s := t.svc
	if rec == nil || rec.Status != StatusInProgress {
		return
	}
	id, turn := rec.ID, rec.TurnNumber
	if s.opts.TurnTimerOnDisconnect == TurnTimerSuspend {
		if p := rec.PlayerBySession(rec.Turn); p != nil && p.ConnectionState == Offline {
			s.timers.Disarm(timers.Turn, id)
			obslog.L().Info("turn_timer_suspended", zap.String("match_id", id), zap.Int("turn_number", turn))
			return
		}
	}
	s.timers.Arm(timers.Turn, id, s.opts.TurnDuration, func() { t.expire(id, turn) })
	s.tr.Broadcast(id, matchdto.NewTimerStart(seconds(s.opts.TurnDuration)))
	obslog.L().Debug("turn_timer_armed", zap.String("match_id", id), zap.Int("turn_number", turn), zap.String("turn", rec.Turn))
}

// Disarm cancels the turn timer for matchID.
func (t *TurnTimers) Disarm(matchID string) bool {
	return t.svc.timers.Disarm(timers.Turn, matchID)
}

// Pending reports whether a turn timer is armed for matchID.
func (t *TurnTimers) Pending(matchID string) bool {
	return t.svc.timers.Pending(timers.Turn, matchID)
}

func (t *TurnTimers) expire(matchID string, turnNumber int) {
	s := t.svc
	unlock := s.locks.Lock(matchID)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	rec, err := s.mgr.ExpireTurn(ctx, matchID, turnNumber, s.opts.MaxMissedTurns)
	if err != nil {
		logCallbackErr("turn_timer", matchID, err)
		return
	}
	if rec.Status == StatusFinished {
		s.endMatch(rec)
		return
	}
	s.tr.Broadcast(rec.ID, matchdto.NewTurnSwitchTimer(matchdto.Board(rec.Board), rec.Turn))
	t.Arm(rec)
}
