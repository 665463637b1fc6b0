package settle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/obslog"
)

const (
	pendingKey = "settle:pending"
	failedKey  = "settle:failed"
)

// Task is one settlement to execute on chain.
type Task struct {
	GameID  string `json:"gameId"`
	Winner  string `json:"winner"`
	ChainID uint64 `json:"chainId"`

	attempts int
}

// ContractSettler executes settleGame and returns the transaction hash.
type ContractSettler interface {
	Settle(ctx context.Context, gameID, winnerAddress string) (string, error)
}

// RecordSink receives the settlement tx hash after a successful payout.
type RecordSink interface {
	RecordSettlementTx(gameID, txHash string)
}

// Settler drains settlement tasks on a background worker so the winning
// move's HTTP response never waits on chain I/O. Failures retry with
// exponential backoff a bounded number of times. When redis is configured
// the pending queue is mirrored there and restored at startup, so tasks
// survive a process restart; without redis the queue is in-memory only.
type Settler struct {
	contract ContractSettler
	records  RecordSink
	rdb      *redis.Client

	tasks chan Task

	maxAttempts int
	baseBackoff time.Duration
	callTimeout time.Duration

	wg sync.WaitGroup
}

type Option func(*Settler)

func WithMaxAttempts(n int) Option {
	return func(s *Settler) { s.maxAttempts = n }
}

func WithBackoff(d time.Duration) Option {
	return func(s *Settler) { s.baseBackoff = d }
}

func WithCallTimeout(d time.Duration) Option {
	return func(s *Settler) { s.callTimeout = d }
}

// AttachRecords wires the settlement tx sink. Must be called before Run
// when the sink could not be passed at construction time.
func (s *Settler) AttachRecords(r RecordSink) {
	if s != nil {
		s.records = r
	}
}

// New builds a settler. rdb may be nil.
func New(contract ContractSettler, records RecordSink, rdb *redis.Client, opts ...Option) *Settler {
	s := &Settler{
		contract:    contract,
		records:     records,
		rdb:         rdb,
		tasks:       make(chan Task, 128),
		maxAttempts: 5,
		baseBackoff: 2 * time.Second,
		callTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch enqueues a settlement and returns immediately.
func (s *Settler) Dispatch(gameID, winnerAddress string, chainID uint64) {
	task := Task{GameID: gameID, Winner: winnerAddress, ChainID: chainID}
	s.persist(task)
	select {
	case s.tasks <- task:
	default:
		// Queue full; when redis is configured its mirror still holds the
		// task for the next restart, the only recovery path left here.
		// Without redis the task is lost.
		obslog.L().Error("settle_queue_full", zap.String("game_id", gameID))
	}
}

// Run restores any persisted tasks and processes the queue until ctx is
// canceled. Run returns only after the task in hand is handled, but
// canceling ctx also cancels its contract call; a task interrupted before
// its last attempt stays pending in redis for the next start.
func (s *Settler) Run(ctx context.Context) {
	s.restore(ctx)
	s.wg.Add(1)
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.tasks:
			s.process(ctx, task)
		}
	}
}

// Wait blocks until the worker loop has exited.
func (s *Settler) Wait() { s.wg.Wait() }

func (s *Settler) process(ctx context.Context, task Task) {
	for task.attempts < s.maxAttempts {
		task.attempts++

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		txHash, err := s.contract.Settle(callCtx, task.GameID, task.Winner)
		cancel()

		if err == nil {
			s.records.RecordSettlementTx(task.GameID, txHash)
			s.unpersist(task)
			obslog.L().Info("settlement_confirmed",
				zap.String("game_id", task.GameID),
				zap.String("winner", task.Winner),
				zap.String("tx", txHash),
				zap.Int("attempts", task.attempts),
			)
			return
		}

		obslog.L().Warn("settlement_attempt_failed",
			zap.String("game_id", task.GameID),
			zap.Int("attempt", task.attempts),
			zap.Error(err),
		)
		if task.attempts >= s.maxAttempts {
			break
		}
		backoff := s.baseBackoff << (task.attempts - 1)
		if backoff > time.Minute {
			backoff = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}

	// The pot stays recoverable on chain; operators reconcile from here.
	obslog.L().Error("settlement_abandoned",
		zap.String("game_id", task.GameID),
		zap.String("winner", task.Winner),
		zap.Int("attempts", task.attempts),
	)
	s.markFailed(task)
}

func (s *Settler) persist(task Task) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rdb.RPush(ctx, pendingKey, raw).Err(); err != nil {
		obslog.L().Warn("settle_persist_error", zap.String("game_id", task.GameID), zap.Error(err))
	}
}

func (s *Settler) unpersist(task Task) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rdb.LRem(ctx, pendingKey, 1, raw).Err(); err != nil {
		obslog.L().Warn("settle_unpersist_error", zap.String("game_id", task.GameID), zap.Error(err))
	}
}

func (s *Settler) markFailed(task Task) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := s.rdb.TxPipeline()
	pipe.LRem(ctx, pendingKey, 1, raw)
	pipe.RPush(ctx, failedKey, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		obslog.L().Warn("settle_mark_failed_error", zap.String("game_id", task.GameID), zap.Error(err))
	}
}

// restore re-enqueues tasks the previous process left pending in redis.
func (s *Settler) restore(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	raws, err := s.rdb.LRange(rctx, pendingKey, 0, -1).Result()
	if err != nil {
		obslog.L().Warn("settle_restore_error", zap.Error(err))
		return
	}
	for _, raw := range raws {
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			continue
		}
		select {
		case s.tasks <- task:
			obslog.L().Info("settlement_restored", zap.String("game_id", task.GameID))
		default:
			return
		}
	}
}
