package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/chain"
	"github.com/Layr-Labs/zugzwang/internal/lobby"
	"github.com/Layr-Labs/zugzwang/internal/obslog"
)

// EscrowSource is the slice of the escrow binding the poller consumes.
type EscrowSource interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	FilterGameEvents(ctx context.Context, fromBlock, toBlock uint64) (*chain.GameEventBatch, error)
	GetGame(ctx context.Context, gameID string) (*chain.ContractGame, error)
	Address() common.Address
	ChainID() uint64
}

// GameSink is the lobby surface the poller reconciles into.
type GameSink interface {
	UpsertFromCreation(lobby.CreationEvent)
	ApplyJoin(lobby.JoinEvent)
	RecordSettlementTx(gameID, txHash string)
	HasSettlementTx(gameID string) bool
}

// Status is a snapshot of the poller's progress for /health.
type Status struct {
	Running            bool      `json:"running"`
	LastProcessedBlock uint64    `json:"lastProcessedBlock"`
	LastTickAt         time.Time `json:"lastTickAt,omitempty"`
	LastError          string    `json:"lastError,omitempty"`
	Ticks              uint64    `json:"ticks"`
}

// Poller drives the lobby from on-chain escrow events. One instance per
// deployed escrow, started at boot.
type Poller struct {
	source   EscrowSource
	sink     GameSink
	interval time.Duration

	// backfillFrom, when non-zero, replays history starting at that block
	// instead of the current head, rebuilding the lobby after a restart.
	backfillFrom uint64

	mu            sync.Mutex
	running       bool
	lastProcessed uint64
	lastTickAt    time.Time
	lastError     string
	ticks         uint64

	// gameIDByHash correlates GameSettled logs, which carry only the
	// keccak hash of the game id, back to creations seen earlier.
	gameIDByHash map[common.Hash]string
}

func New(source EscrowSource, sink GameSink, interval time.Duration, backfillFrom uint64) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		source:       source,
		sink:         sink,
		interval:     interval,
		backfillFrom: backfillFrom,
		gameIDByHash: make(map[common.Hash]string),
	}
}

// Run polls until ctx is canceled. Ticks are serial: a slow range query
// delays the next tick instead of overlapping it.
func (p *Poller) Run(ctx context.Context) {
	for {
		err := p.initCursor(ctx)
		if err == nil {
			break
		}
		obslog.L().Warn("poller_init_retry", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
	p.setRunning(true)
	defer p.setRunning(false)

	obslog.L().Info("poller_started",
		zap.String("escrow", p.source.Address().Hex()),
		zap.Uint64("chain_id", p.source.ChainID()),
		zap.Uint64("from_block", p.cursor()),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("poller_stopped", zap.Uint64("last_block", p.cursor()))
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// initCursor seats lastProcessedBlock: just before the backfill block when
// configured, otherwise at the current head so only new events are seen.
func (p *Poller) initCursor(ctx context.Context) error {
	if p.backfillFrom > 0 {
		p.setCursor(p.backfillFrom - 1)
		return nil
	}
	head, err := p.source.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	p.setCursor(head)
	return nil
}

// tick processes the block range (lastProcessed, head]. The cursor only
// advances after the whole range succeeded, so a failed tick retries the
// same range; idempotent sink operations make the retry safe.
func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	p.ticks++
	p.lastTickAt = time.Now()
	last := p.lastProcessed
	p.mu.Unlock()

	head, err := p.source.CurrentBlock(ctx)
	if err != nil {
		p.fail("current block", err)
		return
	}
	if head <= last {
		p.clearError()
		return
	}

	batch, err := p.source.FilterGameEvents(ctx, last+1, head)
	if err != nil {
		p.fail("filter events", err)
		return
	}

	// Creations strictly before joins: a join's creation is guaranteed to
	// precede it in block order, and may share the batch.
	for _, evt := range batch.Created {
		p.handleCreated(ctx, evt)
	}
	for _, evt := range batch.Joined {
		p.sink.ApplyJoin(lobby.JoinEvent{
			GameID: evt.GameID,
			Joiner: evt.Joiner.Hex(),
			TxHash: evt.TxHash.Hex(),
			Block:  evt.Block,
		})
	}
	for _, evt := range batch.Settled {
		p.handleSettled(evt)
	}

	p.setCursor(head)
	p.clearError()
}

func (p *Poller) handleCreated(ctx context.Context, evt chain.GameCreatedEvent) {
	// The event does not carry the optional named opponent; read it back
	// from the contract. A failed read degrades the game to open.
	opponent := ""
	if record, err := p.source.GetGame(ctx, evt.GameID); err != nil {
		obslog.L().Warn("get_game_failed",
			zap.String("game_id", evt.GameID),
			zap.Error(err),
		)
	} else if record.HasOpponent() {
		opponent = record.Opponent.Hex()
	}

	p.sink.UpsertFromCreation(lobby.CreationEvent{
		GameID:          evt.GameID,
		Owner:           evt.Creator.Hex(),
		Opponent:        opponent,
		Wager:           evt.Wager,
		ChainID:         p.source.ChainID(),
		ContractAddress: p.source.Address().Hex(),
		TxHash:          evt.TxHash.Hex(),
		Block:           evt.Block,
	})

	p.mu.Lock()
	p.gameIDByHash[crypto.Keccak256Hash([]byte(evt.GameID))] = evt.GameID
	p.mu.Unlock()
}

// handleSettled backfills the settlement tx hash when the server's own
// settlement record is missing, e.g. after a restart or a race with
// another settler instance.
func (p *Poller) handleSettled(evt chain.GameSettledEvent) {
	p.mu.Lock()
	gameID, ok := p.gameIDByHash[evt.GameIDHash]
	p.mu.Unlock()
	if !ok {
		return
	}
	if p.sink.HasSettlementTx(gameID) {
		return
	}
	p.sink.RecordSettlementTx(gameID, evt.TxHash.Hex())
	obslog.L().Info("settlement_observed",
		zap.String("game_id", gameID),
		zap.String("winner", evt.Winner.Hex()),
		zap.String("tx", evt.TxHash.Hex()),
	)
}

// Status returns a snapshot for the health endpoint.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:            p.running,
		LastProcessedBlock: p.lastProcessed,
		LastTickAt:         p.lastTickAt,
		LastError:          p.lastError,
		Ticks:              p.ticks,
	}
}

func (p *Poller) fail(op string, err error) {
	p.mu.Lock()
	p.lastError = op + ": " + err.Error()
	p.mu.Unlock()
	if strings.Contains(err.Error(), "context canceled") {
		return
	}
	obslog.L().Error("poller_tick_error", zap.String("op", op), zap.Error(err))
}

func (p *Poller) clearError() {
	p.mu.Lock()
	p.lastError = ""
	p.mu.Unlock()
}

func (p *Poller) cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastProcessed
}

func (p *Poller) setCursor(block uint64) {
	p.mu.Lock()
	p.lastProcessed = block
	p.mu.Unlock()
}

func (p *Poller) setRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
}
