package lobby

import (
	"math/big"
	"sync"
	"testing"

	"github.com/Layr-Labs/zugzwang/internal/engine"
)

const (
	addrA = "0xAaAa00000000000000000000000000000000aAaA"
	addrB = "0xbBbB00000000000000000000000000000000BbBb"
	addrC = "0xcccc00000000000000000000000000000000cccc"
)

type dispatchCall struct {
	gameID  string
	winner  string
	chainID uint64
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeDispatcher) Dispatch(gameID, winnerAddress string, chainID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{gameID: gameID, winner: winnerAddress, chainID: chainID})
}

func (f *fakeDispatcher) all() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.calls...)
}

func creation(id, owner, opponent string) CreationEvent {
	return CreationEvent{
		GameID:          id,
		Owner:           owner,
		Opponent:        opponent,
		Wager:           big.NewInt(10_000_000_000_000_000),
		ChainID:         11155111,
		ContractAddress: "0xescrow",
		TxHash:          "0xtx1",
		Block:           100,
	}
}

func startedGame(t *testing.T, l *Lobby, id string) {
	t.Helper()
	l.UpsertFromCreation(creation(id, addrA, ""))
	l.ApplyJoin(JoinEvent{GameID: id, Joiner: addrB, TxHash: "0xtx2", Block: 101})
}

func TestUpsertIdempotent(t *testing.T) {
	l := New(nil)
	l.UpsertFromCreation(creation("g1", addrA, ""))
	evt := creation("g1", addrC, "")
	evt.Wager = big.NewInt(999)
	l.UpsertFromCreation(evt)

	g, err := l.Get("g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Owner != addrA || g.Wager.Int64() != 10_000_000_000_000_000 {
		t.Fatalf("redelivery overwrote game: %+v", g)
	}
	if g.State != StateWaiting {
		t.Fatalf("state = %s, want WAITING", g.State)
	}
}

func TestJoinStartsGame(t *testing.T) {
	l := New(nil)
	startedGame(t, l, "g1")

	g, err := l.Get("g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.State != StateStarted || g.Opponent != addrB {
		t.Fatalf("join not applied: %+v", g)
	}
	if g.StartedAt == nil || g.Chess == nil {
		t.Fatalf("started game missing timestamp or chess state")
	}
	if g.Chess.CurrentPlayer != engine.White || g.Chess.FullMoveNumber != 1 {
		t.Fatalf("chess state not initial")
	}

	// Re-delivery leaves the record unchanged.
	l.ApplyJoin(JoinEvent{GameID: "g1", Joiner: addrC})
	g2, _ := l.Get("g1")
	if g2.Opponent != addrB || g2.State != StateStarted {
		t.Fatalf("join redelivery mutated game: %+v", g2)
	}
}

func TestJoinUnknownGameIsNoop(t *testing.T) {
	l := New(nil)
	l.ApplyJoin(JoinEvent{GameID: "missing", Joiner: addrB})
	if _, err := l.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListings(t *testing.T) {
	l := New(nil)
	l.UpsertFromCreation(creation("open1", addrA, ""))
	l.UpsertFromCreation(creation("open2", addrB, ""))
	l.UpsertFromCreation(creation("invite1", addrA, addrC))
	startedGame(t, l, "active1")

	open := l.ListOpen(addrA)
	if len(open) != 1 || open[0].ID != "open2" {
		t.Fatalf("ListOpen excluding owner = %v", ids(open))
	}
	if got := l.ListOpen(""); len(got) != 2 {
		t.Fatalf("ListOpen all = %v", ids(got))
	}

	inv := l.ListInvitations(addrC)
	if len(inv) != 1 || inv[0].ID != "invite1" {
		t.Fatalf("ListInvitations = %v", ids(inv))
	}

	active := l.ListActive(addrB)
	if len(active) != 1 || active[0].ID != "active1" {
		t.Fatalf("ListActive = %v", ids(active))
	}

	byOwner := l.ListByOwner(addrA)
	if len(byOwner) != 3 {
		t.Fatalf("ListByOwner = %v", ids(byOwner))
	}

	filtered := l.List(ListFilter{State: StateWaiting, Owner: addrA})
	if len(filtered) != 2 {
		t.Fatalf("List filter = %v", ids(filtered))
	}

	stats := l.Stats()
	if stats.Waiting != 3 || stats.Started != 1 || stats.Total != 4 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMoveAuthorization(t *testing.T) {
	l := New(nil)
	startedGame(t, l, "g1")

	if _, _, err := l.MakeMove("nope", sq(6, 4), sq(4, 4), nil, addrA); err != ErrNotFound {
		t.Fatalf("unknown game: %v", err)
	}
	if _, _, err := l.MakeMove("g1", sq(6, 4), sq(4, 4), nil, addrC); err != ErrNotParticipant {
		t.Fatalf("stranger move: %v", err)
	}
	if _, _, err := l.MakeMove("g1", sq(1, 4), sq(3, 4), nil, addrB); err != ErrNotYourTurn {
		t.Fatalf("out of turn: %v", err)
	}
	if _, err := l.ValidMoves("g1", sq(1, 4), addrB); err != ErrNotYourTurn {
		t.Fatalf("valid moves out of turn: %v", err)
	}

	// None of the rejected calls may mutate state.
	g, _ := l.Get("g1")
	if len(g.Chess.MoveHistory) != 0 || g.Chess.CurrentPlayer != engine.White {
		t.Fatalf("rejected calls mutated game")
	}

	l.UpsertFromCreation(creation("waiting1", addrA, ""))
	if _, _, err := l.MakeMove("waiting1", sq(6, 4), sq(4, 4), nil, addrA); err != ErrIllegalState {
		t.Fatalf("move on waiting game: %v", err)
	}
}

func TestMoveCaseInsensitiveCaller(t *testing.T) {
	l := New(nil)
	startedGame(t, l, "g1")
	upper := "0XAAAA00000000000000000000000000000000AAAA"
	if _, _, err := l.MakeMove("g1", sq(6, 4), sq(4, 4), nil, upper); err != nil {
		t.Fatalf("case-insensitive caller rejected: %v", err)
	}
}

func TestIllegalMoveRejected(t *testing.T) {
	l := New(nil)
	startedGame(t, l, "g1")
	if _, _, err := l.MakeMove("g1", sq(6, 4), sq(3, 4), nil, addrA); err == nil {
		t.Fatalf("expected illegal move error")
	}
	g, _ := l.Get("g1")
	if len(g.Chess.MoveHistory) != 0 {
		t.Fatalf("illegal move mutated state")
	}
}

func TestCheckmateSettlesWithDispatch(t *testing.T) {
	disp := &fakeDispatcher{}
	l := New(disp)
	startedGame(t, l, "g1")

	// Fool's mate: Black delivers checkmate on the fourth half-move.
	moves := []struct {
		from, to engine.Square
		caller   string
	}{
		{sq(6, 5), sq(5, 5), addrA},
		{sq(1, 4), sq(3, 4), addrB},
		{sq(6, 6), sq(4, 6), addrA},
		{sq(0, 3), sq(4, 7), addrB},
	}
	for _, m := range moves {
		if _, _, err := l.MakeMove("g1", m.from, m.to, nil, m.caller); err != nil {
			t.Fatalf("MakeMove %v->%v: %v", m.from, m.to, err)
		}
	}

	g, _ := l.Get("g1")
	if g.State != StateSettled {
		t.Fatalf("state = %s, want SETTLED", g.State)
	}
	if g.Winner == nil || *g.Winner != WinnerBlack {
		t.Fatalf("winner = %v, want BLACK", g.Winner)
	}
	if g.SettledAt == nil {
		t.Fatalf("settledAt not stamped")
	}

	calls := disp.all()
	if len(calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(calls))
	}
	if calls[0].gameID != "g1" || calls[0].winner != addrB || calls[0].chainID != 11155111 {
		t.Fatalf("dispatch = %+v", calls[0])
	}

	// Terminal game refuses further moves.
	if _, _, err := l.MakeMove("g1", sq(7, 4), sq(6, 4), nil, addrA); err != ErrIllegalState {
		t.Fatalf("move on settled game: %v", err)
	}
	if got := l.ListSettled(addrA); len(got) != 1 {
		t.Fatalf("ListSettled = %v", ids(got))
	}
}

func TestStalemateSettlesWithoutDispatch(t *testing.T) {
	disp := &fakeDispatcher{}
	l := New(disp)
	startedGame(t, l, "g1")

	// Plant a position one queen move from stalemate.
	s := &engine.State{CurrentPlayer: engine.White, Status: engine.StatusActive, FullMoveNumber: 1}
	s.Board[0][0] = &engine.Piece{Type: engine.King, Color: engine.Black}
	s.Board[2][1] = &engine.Piece{Type: engine.King, Color: engine.White}
	s.Board[4][2] = &engine.Piece{Type: engine.Queen, Color: engine.White}
	l.mu.Lock()
	l.games["g1"].Chess = s
	l.mu.Unlock()

	if _, _, err := l.MakeMove("g1", sq(4, 2), sq(1, 2), nil, addrA); err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	g, _ := l.Get("g1")
	if g.State != StateSettled || g.Winner != nil {
		t.Fatalf("stalemate settle: state=%s winner=%v", g.State, g.Winner)
	}
	if len(disp.all()) != 0 {
		t.Fatalf("stalemate must not dispatch settlement")
	}
}

func TestDefensiveCopies(t *testing.T) {
	l := New(nil)
	startedGame(t, l, "g1")

	g, _ := l.Get("g1")
	g.Owner = addrC
	g.Wager.SetInt64(1)
	g.Chess.Board[6][4] = nil

	fresh, _ := l.Get("g1")
	if fresh.Owner != addrA || fresh.Wager.Int64() == 1 || fresh.Chess.Board[6][4] == nil {
		t.Fatalf("lobby state reachable through returned copy")
	}

	list := l.ListActive(addrA)
	list[0].State = StateSettled
	if got, _ := l.Get("g1"); got.State != StateStarted {
		t.Fatalf("lobby state reachable through list copy")
	}
}

func TestRecordSettlementTx(t *testing.T) {
	l := New(nil)
	startedGame(t, l, "g1")
	l.RecordSettlementTx("g1", "0xsettle1")
	l.RecordSettlementTx("g1", "0xsettle2") // first write wins
	g, _ := l.Get("g1")
	if g.Escrow.SettlementTxHash != "0xsettle1" {
		t.Fatalf("settlement tx = %q", g.Escrow.SettlementTxHash)
	}
	if !l.HasSettlementTx("g1") {
		t.Fatalf("HasSettlementTx = false")
	}
}

func sq(r, c int) engine.Square { return engine.Square{Row: r, Col: c} }

func ids(games []*Game) []string {
	out := make([]string, 0, len(games))
	for _, g := range games {
		out = append(out, g.ID)
	}
	return out
}
