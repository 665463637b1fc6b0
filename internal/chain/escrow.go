package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// escrowABIJSON is the observable interface of the deployed escrow
// contract. The server consumes it; it does not own its semantics.
const escrowABIJSON = `[
  {"type":"event","name":"GameCreated","inputs":[
    {"name":"gameId","type":"string","indexed":false},
    {"name":"gameIdHash","type":"bytes32","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"wagerAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"GameJoined","inputs":[
    {"name":"gameId","type":"string","indexed":false},
    {"name":"gameIdHash","type":"bytes32","indexed":true},
    {"name":"joiner","type":"address","indexed":true},
    {"name":"wagerAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"GameSettled","inputs":[
    {"name":"gameIdHash","type":"bytes32","indexed":true},
    {"name":"winner","type":"address","indexed":true},
    {"name":"totalWinnings","type":"uint256","indexed":false}]},
  {"type":"function","name":"getGame","stateMutability":"view",
   "inputs":[{"name":"gameId","type":"string"}],
   "outputs":[{"name":"game","type":"tuple","components":[
     {"name":"gameId","type":"string"},
     {"name":"creator","type":"address"},
     {"name":"opponent","type":"address"},
     {"name":"wagerAmount","type":"uint256"},
     {"name":"settled","type":"bool"},
     {"name":"winner","type":"address"}]}]},
  {"type":"function","name":"settleGame","stateMutability":"nonpayable",
   "inputs":[{"name":"gameId","type":"string"},{"name":"winner","type":"address"}],
   "outputs":[]}
]`

// GameCreatedEvent is a decoded GameCreated log.
type GameCreatedEvent struct {
	GameID  string
	Creator common.Address
	Wager   *big.Int
	TxHash  common.Hash
	Block   uint64
}

// GameJoinedEvent is a decoded GameJoined log.
type GameJoinedEvent struct {
	GameID string
	Joiner common.Address
	Wager  *big.Int
	TxHash common.Hash
	Block  uint64
}

// GameSettledEvent is a decoded GameSettled log. Only the keccak hash of
// the game id is emitted.
type GameSettledEvent struct {
	GameIDHash    common.Hash
	Winner        common.Address
	TotalWinnings *big.Int
	TxHash        common.Hash
	Block         uint64
}

// GameEventBatch is every escrow event decoded from one block range.
type GameEventBatch struct {
	Created []GameCreatedEvent
	Joined  []GameJoinedEvent
	Settled []GameSettledEvent
}

// ContractGame mirrors the escrow's stored game record.
type ContractGame struct {
	GameID   string
	Creator  common.Address
	Opponent common.Address
	Wager    *big.Int
	Settled  bool
	Winner   common.Address
}

// HasOpponent reports whether the creator named an opponent.
func (g *ContractGame) HasOpponent() bool {
	return g.Opponent != (common.Address{})
}

// Escrow binds one deployed escrow contract on one chain.
type Escrow struct {
	client  *Client
	address common.Address
	chainID uint64
	abi     abi.ABI

	createdID common.Hash
	joinedID  common.Hash
	settledID common.Hash
}

// NewEscrow parses the contract interface and binds it to an address.
func NewEscrow(client *Client, address string, chainID uint64) (*Escrow, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid escrow address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	return &Escrow{
		client:    client,
		address:   common.HexToAddress(address),
		chainID:   chainID,
		abi:       parsed,
		createdID: parsed.Events["GameCreated"].ID,
		joinedID:  parsed.Events["GameJoined"].ID,
		settledID: parsed.Events["GameSettled"].ID,
	}, nil
}

// Address of the bound contract.
func (e *Escrow) Address() common.Address { return e.address }

// ChainID the contract is deployed on.
func (e *Escrow) ChainID() uint64 { return e.chainID }

// CurrentBlock returns the head of the escrow's chain.
func (e *Escrow) CurrentBlock(ctx context.Context) (uint64, error) {
	return e.client.BlockNumber(ctx, e.chainID)
}

// FilterGameEvents decodes every escrow event in [fromBlock, toBlock].
func (e *Escrow) FilterGameEvents(ctx context.Context, fromBlock, toBlock uint64) (*GameEventBatch, error) {
	logs, err := e.client.FilterLogs(ctx, e.chainID, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{e.address},
		Topics:    [][]common.Hash{{e.createdID, e.joinedID, e.settledID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d,%d]: %w", fromBlock, toBlock, err)
	}

	batch := &GameEventBatch{}
	for _, lg := range logs {
		if lg.Removed || len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case e.createdID:
			evt, err := e.decodeParticipantEvent("GameCreated", lg)
			if err != nil {
				return nil, err
			}
			batch.Created = append(batch.Created, GameCreatedEvent{
				GameID:  evt.gameID,
				Creator: evt.actor,
				Wager:   evt.wager,
				TxHash:  lg.TxHash,
				Block:   lg.BlockNumber,
			})
		case e.joinedID:
			evt, err := e.decodeParticipantEvent("GameJoined", lg)
			if err != nil {
				return nil, err
			}
			batch.Joined = append(batch.Joined, GameJoinedEvent{
				GameID: evt.gameID,
				Joiner: evt.actor,
				Wager:  evt.wager,
				TxHash: lg.TxHash,
				Block:  lg.BlockNumber,
			})
		case e.settledID:
			if len(lg.Topics) < 3 {
				return nil, fmt.Errorf("malformed GameSettled log in tx %s", lg.TxHash)
			}
			values, err := e.abi.Unpack("GameSettled", lg.Data)
			if err != nil {
				return nil, fmt.Errorf("decode GameSettled: %w", err)
			}
			batch.Settled = append(batch.Settled, GameSettledEvent{
				GameIDHash:    lg.Topics[1],
				Winner:        common.BytesToAddress(lg.Topics[2].Bytes()),
				TotalWinnings: values[0].(*big.Int),
				TxHash:        lg.TxHash,
				Block:         lg.BlockNumber,
			})
		}
	}
	return batch, nil
}

type participantEvent struct {
	gameID string
	actor  common.Address
	wager  *big.Int
}

// decodeParticipantEvent handles the shared GameCreated/GameJoined shape:
// gameId and wagerAmount in data, actor in the third topic.
func (e *Escrow) decodeParticipantEvent(name string, lg types.Log) (*participantEvent, error) {
	if len(lg.Topics) < 3 {
		return nil, fmt.Errorf("malformed %s log in tx %s", name, lg.TxHash)
	}
	values, err := e.abi.Unpack(name, lg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	gameID, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("decode %s: gameId not a string", name)
	}
	wager, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: wagerAmount not a uint256", name)
	}
	return &participantEvent{
		gameID: gameID,
		actor:  common.BytesToAddress(lg.Topics[2].Bytes()),
		wager:  wager,
	}, nil
}

// GetGame reads the stored game record, used to learn the optional named
// opponent the creation event does not carry.
func (e *Escrow) GetGame(ctx context.Context, gameID string) (*ContractGame, error) {
	raw, err := e.client.CallView(ctx, e.chainID, e.address, e.abi, "getGame", gameID)
	if err != nil {
		return nil, fmt.Errorf("getGame %q: %w", gameID, err)
	}
	values, err := e.abi.Unpack("getGame", raw)
	if err != nil {
		return nil, fmt.Errorf("decode getGame %q: %w", gameID, err)
	}
	out := abi.ConvertType(values[0], new(struct {
		GameId      string
		Creator     common.Address
		Opponent    common.Address
		WagerAmount *big.Int
		Settled     bool
		Winner      common.Address
	})).(*struct {
		GameId      string
		Creator     common.Address
		Opponent    common.Address
		WagerAmount *big.Int
		Settled     bool
		Winner      common.Address
	})
	return &ContractGame{
		GameID:   out.GameId,
		Creator:  out.Creator,
		Opponent: out.Opponent,
		Wager:    out.WagerAmount,
		Settled:  out.Settled,
		Winner:   out.Winner,
	}, nil
}

// SettleGame pays the pot out to winner. The contract only accepts this
// from the configured settler address.
func (e *Escrow) SettleGame(ctx context.Context, gameID string, winner common.Address) (*types.Receipt, error) {
	return e.client.CallContract(ctx, e.chainID, e.address, e.abi, "settleGame", gameID, winner)
}

// Settle is the string-typed convenience the settlement worker consumes.
// It returns the settlement transaction hash.
func (e *Escrow) Settle(ctx context.Context, gameID, winnerAddress string) (string, error) {
	if !common.IsHexAddress(winnerAddress) {
		return "", fmt.Errorf("invalid winner address %q", winnerAddress)
	}
	receipt, err := e.SettleGame(ctx, gameID, common.HexToAddress(winnerAddress))
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("settleGame %q reverted in tx %s", gameID, receipt.TxHash)
	}
	return receipt.TxHash.Hex(), nil
}
