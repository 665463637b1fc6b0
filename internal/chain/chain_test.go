package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// Well-known development mnemonic; derivation must be deterministic and
// match the widely published account 0 address.
const testMnemonic = "test test test test test test test test test test test junk"

func TestSignerDerivation(t *testing.T) {
	s, err := NewSigner(testMnemonic)
	require.NoError(t, err)
	require.Equal(t,
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		s.Address(),
	)
}

func TestSignerRejectsGarbageMnemonic(t *testing.T) {
	_, err := NewSigner("definitely not a valid mnemonic phrase")
	require.Error(t, err)
}

func TestSignerSignsForChain(t *testing.T) {
	s, err := NewSigner(testMnemonic)
	require.NoError(t, err)

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &to,
		Gas:      21_000,
		GasPrice: big.NewInt(1_000_000_000),
	})
	chainID := big.NewInt(11155111)
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, s.Address(), sender)
}

func TestUnsupportedChain(t *testing.T) {
	c := NewClient(map[uint64]string{1: "http://localhost:8545"}, nil, 0)
	_, err := c.conn(999)
	require.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestEscrowABI(t *testing.T) {
	c := NewClient(map[uint64]string{11155111: "http://localhost:8545"}, nil, 0)
	e, err := NewEscrow(c, "0x5FbDB2315678afecb367f032d93F642f64180aa3", 11155111)
	require.NoError(t, err)

	require.NotEqual(t, common.Hash{}, e.createdID)
	require.NotEqual(t, e.createdID, e.joinedID)
	require.NotEqual(t, e.joinedID, e.settledID)

	// settleGame calldata packs with the contract's argument shapes.
	data, err := e.abi.Pack("settleGame", "game-1", common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	require.NoError(t, err)
	require.Equal(t, e.abi.Methods["settleGame"].ID, data[:4])

	_, err = e.abi.Pack("getGame", "game-1")
	require.NoError(t, err)
}

func TestEscrowRejectsBadAddress(t *testing.T) {
	c := NewClient(nil, nil, 0)
	_, err := NewEscrow(c, "not-an-address", 1)
	require.Error(t, err)
}

func TestContractGameHasOpponent(t *testing.T) {
	g := &ContractGame{}
	require.False(t, g.HasOpponent())
	g.Opponent = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	require.True(t, g.HasOpponent())
}
