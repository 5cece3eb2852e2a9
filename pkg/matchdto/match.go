package matchdto

import "time"

// Board is the 6x7 grid, row 0 on top. 0 is empty, 1 and 2 are seats.
type Board [6][7]int

type Player struct {
	SessionID       string     `json:"sessionId"`
	Username        string     `json:"username"`
	PlayerNumber    int        `json:"playerNumber"`
	IsReady         bool       `json:"isReady"`
	ConnectionState string     `json:"connectionState"`
	DisconnectedAt  *time.Time `json:"disconnectedAt"`
	MissedTurnCount int        `json:"missedTurnCount"`
}

// Match is the snapshot sent in game_state and served by the HTTP API.
type Match struct {
	MatchID      string     `json:"matchId"`
	Players      []Player   `json:"players"`
	Board        Board      `json:"board"`
	Turn         string     `json:"turn,omitempty"`
	Winner       string     `json:"winner,omitempty"`
	ReasonForWin string     `json:"reasonForWin,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	MoveCount    int        `json:"moveCount"`
}
