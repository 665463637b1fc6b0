package gamedto

import (
	"time"

	"github.com/Layr-Labs/zugzwang/internal/engine"
)

// Escrow describes the on-chain footprint of a game.
type Escrow struct {
	ContractAddress  string `json:"contractAddress"`
	CreationTxHash   string `json:"creationTxHash"`
	CreationBlock    uint64 `json:"creationBlock"`
	SettlementTxHash string `json:"settlementTxHash,omitempty"`
}

// Game is the serialized snapshot of a lobby game. Wager is a decimal wei
// string because amounts routinely exceed 2^53.
type Game struct {
	ID          string        `json:"id"`
	Owner       string        `json:"owner"`
	Opponent    string        `json:"opponent,omitempty"`
	Wager       string        `json:"wager"`
	NetworkType string        `json:"networkType"`
	ChainID     uint64        `json:"chainId,omitempty"`
	State       string        `json:"state"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	SettledAt   *time.Time    `json:"settledAt,omitempty"`
	Winner      string        `json:"winner,omitempty"`
	ChessState  *engine.State `json:"chessState,omitempty"`
	Escrow      *Escrow       `json:"escrow,omitempty"`
}

// MoveResult is the data payload of a successful move submission.
type MoveResult struct {
	Move      *engine.Move  `json:"move"`
	GameState *engine.State `json:"gameState"`
}

// Stats counts games per lifecycle state.
type Stats struct {
	Created int `json:"created"`
	Waiting int `json:"waiting"`
	Started int `json:"started"`
	Settled int `json:"settled"`
	Total   int `json:"total"`
}

// GameEvent is pushed over the per-game websocket feed.
type GameEvent struct {
	Type      string        `json:"type"` // started | move | settled
	GameID    string        `json:"gameId"`
	Move      *engine.Move  `json:"move,omitempty"`
	Status    string        `json:"status,omitempty"`
	Winner    string        `json:"winner,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Chess     *engine.State `json:"chessState,omitempty"`
}
