package match

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/board"
	"github.com/park285/connect4-arena/internal/obslog"
)

// Archive receives every match once it is finished.
type Archive interface {
	SaveResult(ctx context.Context, m *Match) error
}

// Manager implements the match state machine. Every operation validates
// against the freshly loaded record and commits through Store.Update, so a
// rejected operation never writes and a lost race is retried from scratch.
type Manager struct {
	store Store
	clock clockwork.Clock
	repo  Archive
	newID func() (string, error)
}

func NewManager(store Store, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{store: store, clock: clock, newID: idGen}
}

// AttachRepository wires an archive for finished matches.
func (m *Manager) AttachRepository(r Archive) {
	if m != nil {
		m.repo = r
	}
}

func (m *Manager) check() error {
	if m == nil || m.store == nil {
		return fmt.Errorf("match manager not initialized")
	}
	return nil
}

// CreateMatch seats the requester as player 1 of a new waiting match.
func (m *Manager) CreateMatch(ctx context.Context, sessionID, username string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	username = strings.TrimSpace(username)
	if sessionID == "" || username == "" {
		return nil, ErrInvalidArgs
	}

	now := m.clock.Now()
	for i := 0; i < maxIDAttempts; i++ {
		id, err := m.newID()
		if err != nil {
			return nil, err
		}
		rec := &Match{
			ID: id,
			Players: []Player{{
				SessionID:       sessionID,
				Username:        username,
				PlayerNumber:    1,
				ConnectionState: Online,
			}},
			Board:     board.New(),
			Status:    StatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		}
		ok, err := m.store.Create(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			obslog.L().Debug("match_id_collision", zap.String("match_id", id), zap.Int("attempt", i+1))
			continue
		}
		if err := m.store.IndexSession(ctx, sessionID, id); err != nil {
			return nil, err
		}
		obslog.L().Info("match_create", zap.String("match_id", id), zap.String("session_id", sessionID), zap.String("username", username))
		return rec, nil
	}
	return nil, errIDExhausted
}

// JoinMatch seats the requester in the free seat of a waiting match.
func (m *Manager) JoinMatch(ctx context.Context, id, sessionID, username string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	id = NormalizeID(id)
	sessionID = strings.TrimSpace(sessionID)
	username = strings.TrimSpace(username)
	if id == "" || sessionID == "" || username == "" {
		return nil, ErrInvalidArgs
	}

	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		if len(cur.Players) >= 2 {
			return ErrMatchFull
		}
		if cur.Status != StatusWaiting {
			return ErrAlreadyStarted
		}
		if cur.PlayerBySession(sessionID) != nil {
			return ErrAlreadyInMatch
		}
		seat := 1
		if cur.PlayerByNumber(1) != nil {
			seat = 2
		}
		cur.Players = append(cur.Players, Player{
			SessionID:       sessionID,
			Username:        username,
			PlayerNumber:    seat,
			ConnectionState: Online,
		})
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		obslog.L().Info("match_join_rejected", zap.String("match_id", id), zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	if err := m.store.IndexSession(ctx, sessionID, id); err != nil {
		return nil, err
	}
	obslog.L().Info("match_join", zap.String("match_id", id), zap.String("session_id", sessionID), zap.String("username", username))
	return rec, nil
}

// SetPlayerReady toggles the requester's readiness. Both players ready
// moves the match into countdown; losing a ready player during countdown
// moves it back to waiting.
func (m *Manager) SetPlayerReady(ctx context.Context, id, sessionID string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	id = NormalizeID(id)
	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		p := cur.PlayerBySession(sessionID)
		if p == nil {
			return ErrPlayerNotInMatch
		}
		if cur.Status == StatusInProgress || cur.Status == StatusFinished {
			return ErrAlreadyStarted
		}
		p.IsReady = !p.IsReady
		switch {
		case cur.BothReady() && cur.Status == StatusWaiting:
			cur.Status = StatusCountdown
		case !cur.BothReady() && cur.Status == StatusCountdown:
			cur.Status = StatusWaiting
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_ready_toggle",
		zap.String("match_id", id),
		zap.String("session_id", sessionID),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

// StartMatch completes a countdown. It only succeeds while the match is
// still counting down with both players ready; otherwise ErrCountdownAborted.
func (m *Manager) StartMatch(ctx context.Context, id string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		if cur.Status != StatusCountdown || !cur.BothReady() {
			return ErrCountdownAborted
		}
		first := cur.PlayerByNumber(1)
		if first == nil {
			return ErrCountdownAborted
		}
		cur.Status = StatusInProgress
		cur.Turn = first.SessionID
		cur.TurnNumber = 1
		for i := range cur.Players {
			cur.Players[i].MissedTurnCount = 0
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_start", zap.String("match_id", rec.ID), zap.String("turn", rec.Turn))
	return rec, nil
}

// ApplyMove drops the requester's disc into column. ErrInvalidColumn leaves
// the board untouched.
func (m *Manager) ApplyMove(ctx context.Context, id, sessionID string, column int) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		if cur.Winner != "" || cur.Status == StatusFinished {
			return ErrTurnViolation
		}
		p := cur.PlayerBySession(sessionID)
		if p == nil {
			return ErrPlayerNotInMatch
		}
		if cur.Status != StatusInProgress || cur.Turn != sessionID {
			return ErrTurnViolation
		}
		grid, row, ok := board.Drop(cur.Board, column, p.PlayerNumber)
		if !ok {
			return ErrInvalidColumn
		}
		cur.Board = grid
		cur.MoveCount++
		p.MissedTurnCount = 0
		cur.UpdatedAt = now

		switch {
		case board.CheckWin(grid, row, column, p.PlayerNumber):
			cur.finish(sessionID, ReasonVictory, now)
		case board.IsFull(grid):
			cur.finish(DrawWinner, ReasonDraw, now)
		default:
			opp := cur.Opponent(sessionID)
			if opp == nil {
				return ErrTurnViolation
			}
			cur.Turn = opp.SessionID
			cur.TurnNumber++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_move",
		zap.String("match_id", rec.ID),
		zap.String("session_id", sessionID),
		zap.Int("column", column),
		zap.Int("move_count", rec.MoveCount),
		zap.String("status", string(rec.Status)),
		zap.String("winner", rec.Winner),
	)
	m.persistIfFinal(ctx, rec)
	return rec, nil
}

// Resign hands the win to the other player regardless of whose turn it is.
// A missing match is a no-op; a finished match is returned unchanged with
// ErrTurnViolation.
func (m *Manager) Resign(ctx context.Context, id, sessionID string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		if cur.Status == StatusFinished {
			return ErrTurnViolation
		}
		if cur.PlayerBySession(sessionID) == nil {
			return ErrPlayerNotInMatch
		}
		opp := cur.Opponent(sessionID)
		if opp == nil {
			return ErrInvalidArgs
		}
		cur.finish(opp.SessionID, ReasonResignation, now)
		cur.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrNotFound) && !errors.Is(err, ErrPlayerNotInMatch) {
		return nil, nil
	}
	if err != nil {
		return rec, err
	}
	obslog.L().Info("match_resign", zap.String("match_id", rec.ID), zap.String("resigner", sessionID), zap.String("winner", rec.Winner))
	m.persistIfFinal(ctx, rec)
	return rec, nil
}

// ExpireTurn charges a missed turn to the current turn holder. The call is
// stale unless the match is in progress on the same turnNumber. Reaching
// maxMissed forfeits the match; otherwise the turn passes on.
func (m *Manager) ExpireTurn(ctx context.Context, id string, turnNumber, maxMissed int) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if maxMissed < 1 {
		maxMissed = 1
	}
	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		if cur.Status != StatusInProgress || cur.TurnNumber != turnNumber {
			return ErrStaleTimer
		}
		p := cur.PlayerBySession(cur.Turn)
		if p == nil {
			return ErrStaleTimer
		}
		opp := cur.PlayerByNumber(3 - p.PlayerNumber)
		if opp == nil {
			return ErrStaleTimer
		}
		p.MissedTurnCount++
		cur.UpdatedAt = now
		if p.MissedTurnCount >= maxMissed {
			cur.finish(opp.SessionID, ReasonMissedTurns, now)
			return nil
		}
		cur.Turn = opp.SessionID
		cur.TurnNumber++
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("turn_timer_expired",
		zap.String("match_id", rec.ID),
		zap.Int("turn_number", turnNumber),
		zap.String("status", string(rec.Status)),
		zap.String("next_turn", rec.Turn),
	)
	m.persistIfFinal(ctx, rec)
	return rec, nil
}

// MarkOffline flags the seat held by sessionID in match id as offline when
// the match is in progress. It returns nil without error when there is
// nothing to mark.
func (m *Manager) MarkOffline(ctx context.Context, id, sessionID string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	id = NormalizeID(id)
	if id == "" || strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}
	now := m.clock.Now()
	marked := false
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		marked = false
		if cur.Status != StatusInProgress {
			return errNoop
		}
		p := cur.PlayerBySession(sessionID)
		if p == nil || p.ConnectionState == Offline {
			return errNoop
		}
		p.ConnectionState = Offline
		p.DisconnectedAt = &now
		cur.UpdatedAt = now
		marked = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil || !marked {
		return nil, err
	}
	obslog.L().Info("player_offline", zap.String("match_id", rec.ID), zap.String("session_id", sessionID))
	return rec, nil
}

// ForfeitDisconnected ends the match in favour of the other seat if seat is
// still offline once the reconnect grace window has elapsed.
func (m *Manager) ForfeitDisconnected(ctx context.Context, id string, seat int) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		if cur.Status != StatusInProgress {
			return ErrStaleTimer
		}
		p := cur.PlayerByNumber(seat)
		if p == nil || p.ConnectionState != Offline {
			return ErrStaleTimer
		}
		opp := cur.PlayerByNumber(3 - seat)
		if opp == nil {
			return ErrStaleTimer
		}
		cur.finish(opp.SessionID, ReasonDisconnect, now)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("disconnect_forfeit", zap.String("match_id", rec.ID), zap.Int("seat", seat), zap.String("winner", rec.Winner))
	m.persistIfFinal(ctx, rec)
	return rec, nil
}

// ReattachSession lets sessionID take over a seat whose session is no
// longer live. Offline seats are preferred, then the lower seat number. The
// bool result reports whether a seat changed hands or came back online.
func (m *Manager) ReattachSession(ctx context.Context, id, sessionID string, isLive func(string) bool) (*Match, bool, error) {
	if err := m.check(); err != nil {
		return nil, false, err
	}
	id = NormalizeID(id)
	sessionID = strings.TrimSpace(sessionID)
	if id == "" || sessionID == "" {
		return nil, false, ErrInvalidArgs
	}
	if isLive == nil {
		isLive = func(string) bool { return true }
	}
	now := m.clock.Now()
	var stale string
	rec, err := m.store.Update(ctx, id, func(cur *Match) error {
		stale = ""
		if p := cur.PlayerBySession(sessionID); p != nil {
			if p.ConnectionState != Offline {
				return errNoop
			}
			p.ConnectionState = Online
			p.DisconnectedAt = nil
			cur.UpdatedAt = now
			stale = sessionID
			return nil
		}
		if cur.Status == StatusFinished {
			return errNoop
		}
		var target *Player
		for i := range cur.Players {
			p := &cur.Players[i]
			if p.SessionID == sessionID || isLive(p.SessionID) {
				continue
			}
			if target == nil ||
				(p.ConnectionState == Offline && target.ConnectionState != Offline) ||
				(p.ConnectionState == target.ConnectionState && p.PlayerNumber < target.PlayerNumber) {
				target = p
			}
		}
		if target == nil {
			return errNoop
		}
		stale = target.SessionID
		if cur.Turn == stale {
			cur.Turn = sessionID
		}
		target.SessionID = sessionID
		target.ConnectionState = Online
		target.DisconnectedAt = nil
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if stale == "" {
		return rec, false, nil
	}
	if err := m.store.IndexSession(ctx, sessionID, id); err != nil {
		return rec, true, err
	}
	obslog.L().Info("session_reattach",
		zap.String("match_id", id),
		zap.String("old_session_id", stale),
		zap.String("session_id", sessionID),
		zap.String("status", string(rec.Status)),
	)
	return rec, true, nil
}

// Get returns the stored match or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Match, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.store.Load(ctx, id)
}

// persistIfFinal archives a finished match when a repository is attached.
func (m *Manager) persistIfFinal(ctx context.Context, rec *Match) {
	if m == nil || m.repo == nil || rec == nil || rec.Status != StatusFinished {
		return
	}
	if err := m.repo.SaveResult(ctx, rec); err != nil {
		obslog.L().Error("match_result_persist_error", zap.String("match_id", rec.ID), zap.String("reason", string(rec.ReasonForWin)), zap.Error(err))
		return
	}
	obslog.L().Info("match_result_persist", zap.String("match_id", rec.ID), zap.String("reason", string(rec.ReasonForWin)))
}
