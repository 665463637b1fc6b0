package settle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeContract struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many calls before succeeding
	err      error
}

func (f *fakeContract) Settle(_ context.Context, gameID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return "", f.err
	}
	return "0xsettled-" + gameID, nil
}

func (f *fakeContract) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecords struct {
	mu sync.Mutex
	m  map[string]string
}

func newFakeRecords() *fakeRecords { return &fakeRecords{m: map[string]string{}} }

func (f *fakeRecords) RecordSettlementTx(gameID, txHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[gameID] = txHash
}

func (f *fakeRecords) get(gameID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[gameID]
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestSettlementSuccessRecordsTx(t *testing.T) {
	rdb := newTestRedis(t)
	contract := &fakeContract{}
	records := newFakeRecords()
	s := New(contract, records, rdb, WithBackoff(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Dispatch("g1", "0xbBbB00000000000000000000000000000000BbBb", 11155111)

	waitFor(t, func() bool { return records.get("g1") != "" })
	require.Equal(t, "0xsettled-g1", records.get("g1"))

	waitFor(t, func() bool {
		n, _ := rdb.LLen(context.Background(), pendingKey).Result()
		return n == 0
	})
}

func TestSettlementRetriesThenSucceeds(t *testing.T) {
	contract := &fakeContract{err: errors.New("nonce too low"), failures: 2}
	records := newFakeRecords()
	s := New(contract, records, nil, WithBackoff(time.Millisecond), WithMaxAttempts(5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Dispatch("g1", "0xbBbB00000000000000000000000000000000BbBb", 11155111)

	waitFor(t, func() bool { return records.get("g1") != "" })
	require.Equal(t, 3, contract.callCount())
}

func TestSettlementAbandonedAfterMaxAttempts(t *testing.T) {
	rdb := newTestRedis(t)
	contract := &fakeContract{err: errors.New("revert: not settler")}
	records := newFakeRecords()
	s := New(contract, records, rdb, WithBackoff(time.Millisecond), WithMaxAttempts(3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Dispatch("g1", "0xbBbB00000000000000000000000000000000BbBb", 11155111)

	waitFor(t, func() bool { return contract.callCount() == 3 })
	waitFor(t, func() bool {
		n, _ := rdb.LLen(context.Background(), failedKey).Result()
		return n == 1
	})
	require.Empty(t, records.get("g1"))
	pending, _ := rdb.LLen(context.Background(), pendingKey).Result()
	require.Zero(t, pending)
}

func TestRestorePendingFromRedis(t *testing.T) {
	rdb := newTestRedis(t)
	require.NoError(t, rdb.RPush(context.Background(), pendingKey,
		`{"gameId":"g9","winner":"0xbBbB00000000000000000000000000000000BbBb","chainId":11155111}`,
	).Err())

	contract := &fakeContract{}
	records := newFakeRecords()
	s := New(contract, records, rdb, WithBackoff(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return records.get("g9") == "0xsettled-g9" })
}
