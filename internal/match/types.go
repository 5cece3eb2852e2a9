package match

import (
	"time"

	"github.com/park285/connect4-arena/internal/board"
)

// Status is the lifecycle position of a match.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusCountdown  Status = "countdown"
	StatusInProgress Status = "in-progress"
	StatusFinished   Status = "finished"
)

// Reason explains how a finished match ended.
type Reason string

const (
	ReasonVictory     Reason = "victory"
	ReasonDraw        Reason = "draw"
	ReasonMissedTurns Reason = "missed_turns"
	ReasonDisconnect  Reason = "disconnect"
	ReasonResignation Reason = "resignation"
)

// ConnState tracks whether a seat currently has a live session.
type ConnState string

const (
	Online  ConnState = "online"
	Offline ConnState = "offline"
)

// DrawWinner is stored in Match.Winner when the board fills up.
const DrawWinner = "draw"

// Player is one seat of a match. PlayerNumber is the durable seat identity;
// SessionID follows whatever connection currently owns the seat.
type Player struct {
	SessionID       string     `json:"sessionId"`
	Username        string     `json:"username"`
	PlayerNumber    int        `json:"playerNumber"`
	IsReady         bool       `json:"isReady"`
	ConnectionState ConnState  `json:"connectionState"`
	DisconnectedAt  *time.Time `json:"disconnectedAt"`
	MissedTurnCount int        `json:"missedTurnCount"`
}

// Match is stored as one JSON document per id.
type Match struct {
	ID           string     `json:"matchId"`
	Players      []Player   `json:"players"`
	Board        board.Grid `json:"board"`
	Turn         string     `json:"turn,omitempty"`
	Winner       string     `json:"winner,omitempty"`
	ReasonForWin Reason     `json:"reasonForWin,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`

	// Version increases by one on every committed write.
	Version int64 `json:"version"`
	// TurnNumber increases on every hand-off of the turn; turn timers carry
	// the number they were armed for.
	TurnNumber int `json:"turnNumber"`
	MoveCount  int `json:"moveCount"`
}

// Clone returns a deep copy safe to mutate.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Players = make([]Player, len(m.Players))
	for i, p := range m.Players {
		if p.DisconnectedAt != nil {
			at := *p.DisconnectedAt
			p.DisconnectedAt = &at
		}
		c.Players[i] = p
	}
	if m.FinishedAt != nil {
		at := *m.FinishedAt
		c.FinishedAt = &at
	}
	return &c
}

// PlayerBySession returns the seat held by sessionID, or nil.
func (m *Match) PlayerBySession(sessionID string) *Player {
	if m == nil || sessionID == "" {
		return nil
	}
	for i := range m.Players {
		if m.Players[i].SessionID == sessionID {
			return &m.Players[i]
		}
	}
	return nil
}

// PlayerByNumber returns seat n (1 or 2), or nil.
func (m *Match) PlayerByNumber(n int) *Player {
	if m == nil {
		return nil
	}
	for i := range m.Players {
		if m.Players[i].PlayerNumber == n {
			return &m.Players[i]
		}
	}
	return nil
}

// Opponent returns the seat that is not held by sessionID, or nil when the
// session is not seated or has no opponent yet.
func (m *Match) Opponent(sessionID string) *Player {
	me := m.PlayerBySession(sessionID)
	if me == nil {
		return nil
	}
	return m.PlayerByNumber(3 - me.PlayerNumber)
}

// BothReady reports whether two players are seated and both are ready.
func (m *Match) BothReady() bool {
	if m == nil || len(m.Players) != 2 {
		return false
	}
	return m.Players[0].IsReady && m.Players[1].IsReady
}

// WinnerUsername resolves Winner to a display name. It is empty for draws
// and unfinished matches.
func (m *Match) WinnerUsername() string {
	if m == nil || m.Winner == "" || m.Winner == DrawWinner {
		return ""
	}
	if p := m.PlayerBySession(m.Winner); p != nil {
		return p.Username
	}
	return ""
}

func (m *Match) finish(winner string, reason Reason, now time.Time) {
	m.Status = StatusFinished
	m.Winner = winner
	m.ReasonForWin = reason
	m.Turn = ""
	m.FinishedAt = &now
}
