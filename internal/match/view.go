package match

import (
	"time"

	"github.com/park285/connect4-arena/pkg/matchdto"
)

// View converts the record into its wire snapshot.
func (m *Match) View() matchdto.Match {
	out := matchdto.Match{
		MatchID:      m.ID,
		Players:      make([]matchdto.Player, 0, len(m.Players)),
		Board:        matchdto.Board(m.Board),
		Turn:         m.Turn,
		Winner:       m.Winner,
		ReasonForWin: string(m.ReasonForWin),
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt,
		MoveCount:    m.MoveCount,
	}
	if m.FinishedAt != nil {
		at := *m.FinishedAt
		out.FinishedAt = &at
	}
	for _, p := range m.Players {
		var at *time.Time
		if p.DisconnectedAt != nil {
			t := *p.DisconnectedAt
			at = &t
		}
		out.Players = append(out.Players, matchdto.Player{
			SessionID:       p.SessionID,
			Username:        p.Username,
			PlayerNumber:    p.PlayerNumber,
			IsReady:         p.IsReady,
			ConnectionState: string(p.ConnectionState),
			DisconnectedAt:  at,
			MissedTurnCount: p.MissedTurnCount,
		})
	}
	return out
}

func gameOverMessage(m *Match) matchdto.GameOver {
	return matchdto.NewGameOver(matchdto.Board(m.Board), m.Winner, m.WinnerUsername(), string(m.ReasonForWin))
}
