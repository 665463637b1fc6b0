package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Layr-Labs/zugzwang/internal/lobby"
)

// Repository archives settled games to Postgres for history queries that
// outlive the in-memory lobby. The lobby stays authoritative; a write
// failure here never affects gameplay or settlement.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts one settled game.
func (r *Repository) SaveResult(ctx context.Context, g *lobby.Game) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	if g.State != lobby.StateSettled {
		return nil
	}

	result := ""
	moveCount := 0
	if g.Chess != nil {
		result = string(g.Chess.Status)
		moveCount = len(g.Chess.MoveHistory)
	}
	winner, winnerAddr := "", ""
	if g.Winner != nil {
		winner = string(*g.Winner)
		if *g.Winner == lobby.WinnerWhite {
			winnerAddr = g.Owner
		} else {
			winnerAddr = g.Opponent
		}
	}
	wager := "0"
	if g.Wager != nil {
		wager = g.Wager.String()
	}
	settlementTx := ""
	if g.Escrow != nil {
		settlementTx = g.Escrow.SettlementTxHash
	}

	q := `INSERT INTO settled_games (
	    game_id, owner_address, opponent_address, wager_wei, chain_id,
	    result, winner, winner_address, move_count,
	    created_at, started_at, settled_at, settlement_tx
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    winner=EXCLUDED.winner,
	    winner_address=EXCLUDED.winner_address,
	    move_count=EXCLUDED.move_count,
	    settled_at=EXCLUDED.settled_at,
	    settlement_tx=EXCLUDED.settlement_tx`

	_, err := r.db.ExecContext(ctx, q,
		g.ID, g.Owner, g.Opponent, wager, g.ChainID,
		result, winner, winnerAddr, moveCount,
		g.CreatedAt, g.StartedAt, g.SettledAt, settlementTx,
	)
	return err
}
