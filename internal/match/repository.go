package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository archives finished matches in PostgreSQL.
type Repository struct {
	db *sql.DB
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS connect4_matches (
    match_id        TEXT PRIMARY KEY,
    player1_session TEXT NOT NULL,
    player1_name    TEXT NOT NULL,
    player2_session TEXT NOT NULL DEFAULT '',
    player2_name    TEXT NOT NULL DEFAULT '',
    winner_seat     SMALLINT NOT NULL DEFAULT 0,
    winner_name     TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL,
    move_count      INTEGER NOT NULL DEFAULT 0,
    board           JSONB NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    ended_at        TIMESTAMPTZ NOT NULL,
    duration_ms     BIGINT NOT NULL DEFAULT 0
)`

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// NewRepositoryFromDB wraps an open handle.
func NewRepositoryFromDB(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the archive table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

// SaveResult upserts a finished match.
func (r *Repository) SaveResult(ctx context.Context, m *Match) error {
	if r == nil || r.db == nil || m == nil {
		return nil
	}
	if m.Status != StatusFinished {
		return nil
	}
	row := resultRow(m)
	boardRaw, err := json.Marshal(m.Board)
	if err != nil {
		return err
	}

	q := `INSERT INTO connect4_matches (
        match_id, player1_session, player1_name, player2_session, player2_name,
        winner_seat, winner_name, reason, move_count, board,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
      ) ON CONFLICT (match_id) DO UPDATE SET
        player1_session=EXCLUDED.player1_session,
        player1_name=EXCLUDED.player1_name,
        player2_session=EXCLUDED.player2_session,
        player2_name=EXCLUDED.player2_name,
        winner_seat=EXCLUDED.winner_seat,
        winner_name=EXCLUDED.winner_name,
        reason=EXCLUDED.reason,
        move_count=EXCLUDED.move_count,
        board=EXCLUDED.board,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		m.ID,
		row.p1Session, row.p1Name,
		row.p2Session, row.p2Name,
		row.winnerSeat, row.winnerName, string(m.ReasonForWin), m.MoveCount, string(boardRaw),
		m.CreatedAt, row.endedAt, row.durationMS,
	)
	return err
}

type archivedRow struct {
	p1Session, p1Name string
	p2Session, p2Name string
	winnerSeat        int
	winnerName        string
	endedAt           time.Time
	durationMS        int64
}

// resultRow flattens a finished match into archive columns. Draws keep
// winner_seat 0.
func resultRow(m *Match) archivedRow {
	var row archivedRow
	if p := m.PlayerByNumber(1); p != nil {
		row.p1Session, row.p1Name = p.SessionID, p.Username
	}
	if p := m.PlayerByNumber(2); p != nil {
		row.p2Session, row.p2Name = p.SessionID, p.Username
	}
	if m.Winner != DrawWinner {
		if p := m.PlayerBySession(m.Winner); p != nil {
			row.winnerSeat, row.winnerName = p.PlayerNumber, p.Username
		}
	}
	row.endedAt = m.UpdatedAt
	if m.FinishedAt != nil {
		row.endedAt = *m.FinishedAt
	}
	row.durationMS = row.endedAt.Sub(m.CreatedAt).Milliseconds()
	if row.durationMS < 0 {
		row.durationMS = 0
	}
	return row
}
