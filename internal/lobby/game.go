package lobby

import (
	"math/big"
	"strings"
	"time"

	"github.com/Layr-Labs/zugzwang/internal/engine"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

// NetworkType of the escrow a game was created on. SOL is reserved.
type NetworkType string

const (
	NetworkEVM NetworkType = "EVM"
	NetworkSOL NetworkType = "SOL"
)

// State is the lifecycle state of a game.
type State string

const (
	StateCreated State = "CREATED"
	StateWaiting State = "WAITING"
	StateStarted State = "STARTED"
	StateSettled State = "SETTLED"
)

// Winner of a settled game, by color. Only set on checkmate.
type Winner string

const (
	WinnerWhite Winner = "WHITE"
	WinnerBlack Winner = "BLACK"
)

// Escrow is the on-chain footprint of a game.
type Escrow struct {
	ContractAddress  string
	CreationTxHash   string
	CreationBlock    uint64
	SettlementTxHash string
}

// Game is the authoritative record of one wagered match. The creator plays
// White, the joiner Black. Records are owned exclusively by the Lobby;
// everything handed out is a deep copy.
type Game struct {
	ID          string
	Owner       string
	Opponent    string
	Wager       *big.Int
	NetworkType NetworkType
	ChainID     uint64
	State       State
	CreatedAt   time.Time
	StartedAt   *time.Time
	SettledAt   *time.Time
	Chess       *engine.State
	Winner      *Winner
	Escrow      *Escrow
}

// copy returns a deep copy sharing nothing with the receiver.
func (g *Game) copy() *Game {
	ng := *g
	if g.Wager != nil {
		ng.Wager = new(big.Int).Set(g.Wager)
	}
	if g.StartedAt != nil {
		t := *g.StartedAt
		ng.StartedAt = &t
	}
	if g.SettledAt != nil {
		t := *g.SettledAt
		ng.SettledAt = &t
	}
	if g.Chess != nil {
		ng.Chess = g.Chess.Clone()
	}
	if g.Winner != nil {
		w := *g.Winner
		ng.Winner = &w
	}
	if g.Escrow != nil {
		e := *g.Escrow
		ng.Escrow = &e
	}
	return &ng
}

// colorOf maps a participant address to their side. Owner plays White.
func (g *Game) colorOf(addr string) (engine.Color, bool) {
	if sameAddress(g.Owner, addr) {
		return engine.White, true
	}
	if g.Opponent != "" && sameAddress(g.Opponent, addr) {
		return engine.Black, true
	}
	return "", false
}

func (g *Game) isParticipant(addr string) bool {
	_, ok := g.colorOf(addr)
	return ok
}

// winnerAddress resolves the payout address for a decided game.
func (g *Game) winnerAddress() string {
	if g.Winner == nil {
		return ""
	}
	if *g.Winner == WinnerWhite {
		return g.Owner
	}
	return g.Opponent
}

// sameAddress compares hex addresses case-insensitively.
func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// ToDTO serializes a game snapshot for the API.
func (g *Game) ToDTO() *gamedto.Game {
	d := &gamedto.Game{
		ID:          g.ID,
		Owner:       g.Owner,
		Opponent:    g.Opponent,
		NetworkType: string(g.NetworkType),
		ChainID:     g.ChainID,
		State:       string(g.State),
		CreatedAt:   g.CreatedAt,
		StartedAt:   g.StartedAt,
		SettledAt:   g.SettledAt,
		ChessState:  g.Chess,
	}
	if g.Wager != nil {
		d.Wager = g.Wager.String()
	} else {
		d.Wager = "0"
	}
	if g.Winner != nil {
		d.Winner = string(*g.Winner)
	}
	if g.Escrow != nil {
		d.Escrow = &gamedto.Escrow{
			ContractAddress:  g.Escrow.ContractAddress,
			CreationTxHash:   g.Escrow.CreationTxHash,
			CreationBlock:    g.Escrow.CreationBlock,
			SettlementTxHash: g.Escrow.SettlementTxHash,
		}
	}
	return d
}
