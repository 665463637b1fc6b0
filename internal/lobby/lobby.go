package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/engine"
	"github.com/Layr-Labs/zugzwang/internal/obslog"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

var (
	ErrNotFound       = errors.New("game not found")
	ErrNotParticipant = errors.New("caller is not a participant")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalState   = errors.New("operation not allowed in current game state")
	ErrIllegalMove    = errors.New("illegal move")
)

// SettlementDispatcher receives the payout request for a checkmated game.
// Dispatch must not block; settlement runs off the move path.
type SettlementDispatcher interface {
	Dispatch(gameID, winnerAddress string, chainID uint64)
}

// ResultArchiver persists settled games. Optional.
type ResultArchiver interface {
	SaveResult(ctx context.Context, g *Game) error
}

// EventPublisher fans game events out to live subscribers. Optional.
type EventPublisher interface {
	Publish(gameID string, evt gamedto.GameEvent)
}

// CreationEvent is a reconciled on-chain GameCreated, enriched with the
// optional named opponent read back from the contract.
type CreationEvent struct {
	GameID          string
	Owner           string
	Opponent        string
	Wager           *big.Int
	ChainID         uint64
	ContractAddress string
	TxHash          string
	Block           uint64
}

// JoinEvent is a reconciled on-chain GameJoined.
type JoinEvent struct {
	GameID string
	Joiner string
	TxHash string
	Block  uint64
}

// Lobby owns every Game record. All reads and mutations are serialized
// under one mutex; the mutex is never held across dispatch, archive or
// publish calls.
type Lobby struct {
	mu    sync.Mutex
	games map[string]*Game

	settler   SettlementDispatcher
	archive   ResultArchiver
	publisher EventPublisher

	now func() time.Time
}

func New(settler SettlementDispatcher) *Lobby {
	return &Lobby{
		games:   make(map[string]*Game),
		settler: settler,
		now:     time.Now,
	}
}

// AttachArchive wires an optional settled-game sink.
func (l *Lobby) AttachArchive(a ResultArchiver) {
	if l != nil {
		l.archive = a
	}
}

// AttachPublisher wires an optional live event feed.
func (l *Lobby) AttachPublisher(p EventPublisher) {
	if l != nil {
		l.publisher = p
	}
}

// UpsertFromCreation inserts a game observed on chain. Idempotent: an
// existing gameId is left untouched.
func (l *Lobby) UpsertFromCreation(evt CreationEvent) {
	l.mu.Lock()
	if _, exists := l.games[evt.GameID]; exists {
		l.mu.Unlock()
		return
	}
	wager := evt.Wager
	if wager == nil {
		wager = big.NewInt(0)
	}
	g := &Game{
		ID:          evt.GameID,
		Owner:       evt.Owner,
		Opponent:    evt.Opponent,
		Wager:       new(big.Int).Set(wager),
		NetworkType: NetworkEVM,
		ChainID:     evt.ChainID,
		State:       StateWaiting,
		CreatedAt:   l.now(),
		Escrow: &Escrow{
			ContractAddress: evt.ContractAddress,
			CreationTxHash:  evt.TxHash,
			CreationBlock:   evt.Block,
		},
	}
	l.games[g.ID] = g
	l.mu.Unlock()

	obslog.L().Info("game_created",
		zap.String("game_id", g.ID),
		zap.String("owner", g.Owner),
		zap.String("opponent", g.Opponent),
		zap.String("wager", g.Wager.String()),
		zap.Uint64("chain_id", g.ChainID),
	)
}

// ApplyJoin transitions a CREATED/WAITING game to STARTED and seeds the
// chess state. Re-delivery of the same join is a no-op.
func (l *Lobby) ApplyJoin(evt JoinEvent) {
	l.mu.Lock()
	g, ok := l.games[evt.GameID]
	if !ok {
		l.mu.Unlock()
		obslog.L().Warn("join_for_unknown_game", zap.String("game_id", evt.GameID))
		return
	}
	if g.State != StateCreated && g.State != StateWaiting {
		l.mu.Unlock()
		return
	}
	now := l.now()
	g.Opponent = evt.Joiner
	g.State = StateStarted
	g.StartedAt = &now
	g.Chess = engine.Initial()
	snapshot := g.copy()
	l.mu.Unlock()

	obslog.L().Info("game_started",
		zap.String("game_id", evt.GameID),
		zap.String("joiner", evt.Joiner),
	)
	l.publish(evt.GameID, gamedto.GameEvent{
		Type:      "started",
		GameID:    evt.GameID,
		Status:    string(snapshot.Chess.Status),
		Timestamp: now,
		Chess:     snapshot.Chess,
	})
}

// RecordSettlementTx stores the settlement transaction hash once known,
// from either the settler or an observed GameSettled event.
func (l *Lobby) RecordSettlementTx(gameID, txHash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.games[gameID]
	if !ok || g.Escrow == nil || g.Escrow.SettlementTxHash != "" {
		return
	}
	g.Escrow.SettlementTxHash = txHash
}

// HasSettlementTx reports whether a settlement hash is already recorded.
func (l *Lobby) HasSettlementTx(gameID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.games[gameID]
	return ok && g.Escrow != nil && g.Escrow.SettlementTxHash != ""
}

// Get returns a deep copy of one game.
func (l *Lobby) Get(id string) (*Game, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.copy(), nil
}

// ListFilter narrows the generic listing. Empty fields match everything.
type ListFilter struct {
	State    State
	Owner    string
	Opponent string
}

// List returns games matching the filter, newest first.
func (l *Lobby) List(f ListFilter) []*Game {
	return l.collect(func(g *Game) bool {
		if f.State != "" && g.State != f.State {
			return false
		}
		if f.Owner != "" && !sameAddress(g.Owner, f.Owner) {
			return false
		}
		if f.Opponent != "" && !sameAddress(g.Opponent, f.Opponent) {
			return false
		}
		return true
	})
}

func (l *Lobby) ListByOwner(addr string) []*Game {
	return l.collect(func(g *Game) bool { return sameAddress(g.Owner, addr) })
}

func (l *Lobby) ListByOpponent(addr string) []*Game {
	return l.collect(func(g *Game) bool { return sameAddress(g.Opponent, addr) })
}

// ListOpen returns joinable games: waiting, no named opponent, optionally
// excluding those owned by excludeAddr.
func (l *Lobby) ListOpen(excludeAddr string) []*Game {
	return l.collect(func(g *Game) bool {
		if g.State != StateWaiting || g.Opponent != "" {
			return false
		}
		return excludeAddr == "" || !sameAddress(g.Owner, excludeAddr)
	})
}

// ListInvitations returns waiting games that name addr as the opponent.
func (l *Lobby) ListInvitations(addr string) []*Game {
	return l.collect(func(g *Game) bool {
		return g.State == StateWaiting && sameAddress(g.Opponent, addr)
	})
}

// ListActive returns started games addr participates in.
func (l *Lobby) ListActive(addr string) []*Game {
	return l.collect(func(g *Game) bool {
		return g.State == StateStarted && g.isParticipant(addr)
	})
}

// ListSettled returns settled games addr participated in.
func (l *Lobby) ListSettled(addr string) []*Game {
	return l.collect(func(g *Game) bool {
		return g.State == StateSettled && g.isParticipant(addr)
	})
}

// Stats counts games per state.
func (l *Lobby) Stats() gamedto.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s gamedto.Stats
	for _, g := range l.games {
		switch g.State {
		case StateCreated:
			s.Created++
		case StateWaiting:
			s.Waiting++
		case StateStarted:
			s.Started++
		case StateSettled:
			s.Settled++
		}
		s.Total++
	}
	return s
}

// ValidMoves returns legal destinations for the caller's piece. The caller
// must be a participant of a started game and it must be their turn.
func (l *Lobby) ValidMoves(id string, from engine.Square, caller string) ([]engine.Square, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	if g.State != StateStarted || g.Chess == nil {
		return nil, ErrIllegalState
	}
	color, ok := g.colorOf(caller)
	if !ok {
		return nil, ErrNotParticipant
	}
	if color != g.Chess.CurrentPlayer {
		return nil, ErrNotYourTurn
	}
	return engine.ValidMoves(g.Chess, from), nil
}

// MakeMove applies a move for caller and advances the game lifecycle. On
// checkmate the game settles with a winner and a settlement dispatch; on
// stalemate it settles with neither.
func (l *Lobby) MakeMove(id string, from, to engine.Square, promotion *engine.PieceType, caller string) (*engine.Move, *Game, error) {
	l.mu.Lock()
	g, ok := l.games[id]
	if !ok {
		l.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	if g.State != StateStarted || g.Chess == nil {
		l.mu.Unlock()
		return nil, nil, ErrIllegalState
	}
	color, participant := g.colorOf(caller)
	if !participant {
		l.mu.Unlock()
		return nil, nil, ErrNotParticipant
	}
	if color != g.Chess.CurrentPlayer {
		l.mu.Unlock()
		return nil, nil, ErrNotYourTurn
	}

	ns, mv, err := engine.MakeMove(g.Chess, from, to, promotion)
	if err != nil {
		l.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	g.Chess = ns

	settled := false
	var winnerAddr string
	switch ns.Status {
	case engine.StatusCheckmate:
		now := l.now()
		w := WinnerWhite
		if *ns.Winner == engine.Black {
			w = WinnerBlack
		}
		g.State = StateSettled
		g.Winner = &w
		g.SettledAt = &now
		winnerAddr = g.winnerAddress()
		settled = true
	case engine.StatusStalemate:
		now := l.now()
		g.State = StateSettled
		g.SettledAt = &now
		settled = true
	}
	snapshot := g.copy()
	l.mu.Unlock()

	obslog.L().Info("move_accepted",
		zap.String("game_id", id),
		zap.String("caller", caller),
		zap.String("status", string(ns.Status)),
	)
	l.publish(id, gamedto.GameEvent{
		Type:      "move",
		GameID:    id,
		Move:      mv,
		Status:    string(ns.Status),
		Timestamp: l.now(),
	})

	if settled {
		l.finalize(snapshot, winnerAddr)
	}
	return mv, snapshot, nil
}

// finalize runs settlement side effects outside the lobby lock.
func (l *Lobby) finalize(g *Game, winnerAddr string) {
	winner := ""
	if g.Winner != nil {
		winner = string(*g.Winner)
	}
	obslog.L().Info("game_settled",
		zap.String("game_id", g.ID),
		zap.String("winner", winner),
		zap.String("winner_address", winnerAddr),
	)
	l.publish(g.ID, gamedto.GameEvent{
		Type:      "settled",
		GameID:    g.ID,
		Status:    string(g.Chess.Status),
		Winner:    winner,
		Timestamp: l.now(),
	})
	if l.archive != nil {
		go func(snap *Game) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := l.archive.SaveResult(ctx, snap); err != nil {
				obslog.L().Error("archive_save_error", zap.String("game_id", snap.ID), zap.Error(err))
			}
		}(g.copy())
	}
	if winnerAddr != "" && l.settler != nil {
		l.settler.Dispatch(g.ID, winnerAddr, g.ChainID)
	}
}

func (l *Lobby) publish(gameID string, evt gamedto.GameEvent) {
	if l.publisher != nil {
		l.publisher.Publish(gameID, evt)
	}
}

// collect snapshots all games matching pred, newest creation first.
func (l *Lobby) collect(pred func(*Game) bool) []*Game {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Game, 0)
	for _, g := range l.games {
		if pred(g) {
			out = append(out, g.copy())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
