// Package indexer keeps an off-chain sqlite history of game events.
package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"zsphere/internal/fhe"
	"zsphere/internal/game"
)

const (
	KindGameStarted = "game_started"
	KindRoundPlayed = "round_played"
)

// Event is one indexed transition. Handles are hex; plaintexts are never stored.
type Event struct {
	ID        string    `json:"id"`
	Player    string    `json:"player"`
	Kind      string    `json:"kind"`
	Round     uint32    `json:"round"`
	Score     string    `json:"score"`
	BigBall   string    `json:"bigBall,omitempty"`
	SmallBall string    `json:"smallBall,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Indexer implements game.Notifier. Write failures are logged and dropped.
type Indexer struct {
	db     *sql.DB
	now    func() time.Time
	logger log.Logger
}

var _ game.Notifier = (*Indexer)(nil)

func Open(path string, logger log.Logger) (*Indexer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("indexer: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexer: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexer: busy timeout: %w", err)
	}
	ix := &Indexer{db: db, now: time.Now, logger: logger.With("module", "indexer")}
	if err := ix.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Indexer) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			player TEXT NOT NULL,
			kind TEXT NOT NULL,
			round INTEGER NOT NULL DEFAULT 0,
			score TEXT NOT NULL,
			big_ball TEXT NOT NULL DEFAULT '',
			small_ball TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_player_round ON events(player, round)`,
	}
	for _, m := range migrations {
		if _, err := ix.db.Exec(m); err != nil {
			return fmt.Errorf("indexer: migrate: %w", err)
		}
	}
	return nil
}

func (ix *Indexer) Close() error { return ix.db.Close() }

func (ix *Indexer) GameStarted(ev game.GameStarted) {
	ix.insert(Event{
		Player: ev.Player.Hex(),
		Kind:   KindGameStarted,
		Score:  ev.Score.Hex(),
	})
}

func (ix *Indexer) RoundPlayed(ev game.RoundPlayed) {
	ix.insert(Event{
		Player:    ev.Player.Hex(),
		Kind:      KindRoundPlayed,
		Round:     ev.RoundsPlayed,
		Score:     ev.NewScore.Hex(),
		BigBall:   ev.BigBall.Hex(),
		SmallBall: ev.SmallBall.Hex(),
		Outcome:   ev.Outcome.Hex(),
	})
}

func (ix *Indexer) insert(e Event) {
	e.ID = uuid.NewString()
	e.CreatedAt = ix.now().UTC()
	_, err := ix.db.Exec(
		`INSERT INTO events (id, player, kind, round, score, big_ball, small_ball, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Player, e.Kind, e.Round, e.Score, e.BigBall, e.SmallBall, e.Outcome, e.CreatedAt,
	)
	if err != nil {
		ix.logger.Error("index event", "kind", e.Kind, "player", e.Player, "err", err)
	}
}

// History returns a player's events in round order, at most limit rows
// (all rows when limit <= 0).
func (ix *Indexer) History(ctx context.Context, player common.Address, limit int) ([]Event, error) {
	q := `SELECT id, player, kind, round, score, big_ball, small_ball, outcome, created_at
		FROM events WHERE player = ? ORDER BY round ASC, created_at ASC`
	args := []any{player.Hex()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("indexer: history: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Player, &e.Kind, &e.Round, &e.Score, &e.BigBall, &e.SmallBall, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("indexer: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestScore returns the score handle of the player's most recent event.
func (ix *Indexer) LatestScore(ctx context.Context, player common.Address) (fhe.Handle, bool, error) {
	var s string
	err := ix.db.QueryRowContext(ctx,
		`SELECT score FROM events WHERE player = ? ORDER BY round DESC, created_at DESC LIMIT 1`,
		player.Hex(),
	).Scan(&s)
	if err == sql.ErrNoRows {
		return fhe.Handle{}, false, nil
	}
	if err != nil {
		return fhe.Handle{}, false, fmt.Errorf("indexer: latest score: %w", err)
	}
	h, err := fhe.HandleFromHex(s)
	if err != nil {
		return fhe.Handle{}, false, err
	}
	return h, true, nil
}
