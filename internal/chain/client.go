package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/obslog"
)

// ErrUnsupportedChain is returned for operations against a chainId with no
// configured RPC endpoint.
var ErrUnsupportedChain = errors.New("unsupported chain")

const receiptPollInterval = time.Second

// Client is a chain-aware RPC facade. Connections are dialed lazily per
// chainId and reused for the process lifetime.
type Client struct {
	mu      sync.Mutex
	rpcURLs map[uint64]string
	conns   map[uint64]*ethclient.Client

	signer  *Signer
	timeout time.Duration
}

// NewClient builds the facade over the configured chainId -> rpcUrl set.
func NewClient(rpcURLs map[uint64]string, signer *Signer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	urls := make(map[uint64]string, len(rpcURLs))
	for id, u := range rpcURLs {
		urls[id] = u
	}
	return &Client{
		rpcURLs: urls,
		conns:   make(map[uint64]*ethclient.Client),
		signer:  signer,
		timeout: timeout,
	}
}

// SignerAddress is the settler address derived from the mnemonic.
func (c *Client) SignerAddress() common.Address { return c.signer.Address() }

// Close releases every dialed connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = make(map[uint64]*ethclient.Client)
}

func (c *Client) conn(chainID uint64) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[chainID]; ok {
		return conn, nil
	}
	url, ok := c.rpcURLs[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	conn, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	c.conns[chainID] = conn
	return conn, nil
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// GetBalance returns the wei balance of addr.
func (c *Client) GetBalance(ctx context.Context, addr common.Address, chainID uint64) (*big.Int, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return conn.BalanceAt(ctx, addr, nil)
}

// PendingNonce returns the next nonce for addr including pending txs.
func (c *Client) PendingNonce(ctx context.Context, addr common.Address, chainID uint64) (uint64, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return 0, err
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return conn.PendingNonceAt(ctx, addr)
}

// BroadcastSigned submits an RLP-encoded signed transaction.
func (c *Client) BroadcastSigned(ctx context.Context, rawTx []byte, chainID uint64) (common.Hash, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return common.Hash{}, fmt.Errorf("decode raw tx: %w", err)
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := conn.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx expires.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, chainID uint64) (*types.Receipt, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := conn.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", txHash, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// CallContract packs a state-changing method call, signs it with the
// settler key, submits it, and waits for the receipt.
func (c *Client) CallContract(ctx context.Context, chainID uint64, to common.Address, contractABI abi.ABI, method string, args ...any) (*types.Receipt, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	sendCtx, cancel := c.opCtx(ctx)
	defer cancel()

	from := c.signer.Address()
	nonce, err := conn.PendingNonceAt(sendCtx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := conn.SuggestGasPrice(sendCtx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gasLimit, err := conn.EstimateGas(sendCtx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	// Headroom for estimation drift between simulation and inclusion.
	gasLimit = gasLimit + gasLimit/5

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := c.signer.SignTx(tx, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := conn.SendTransaction(sendCtx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	obslog.L().Info("contract_call_sent",
		zap.Uint64("chain_id", chainID),
		zap.String("method", method),
		zap.String("tx", signed.Hash().Hex()),
	)
	return c.WaitForReceipt(ctx, signed.Hash(), chainID)
}

// CallView executes a read-only call and returns the raw return data.
func (c *Client) CallView(ctx context.Context, chainID uint64, to common.Address, contractABI abi.ABI, method string, args ...any) ([]byte, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return conn.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// BlockNumber returns the current head of a chain.
func (c *Client) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return 0, err
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return conn.BlockNumber(ctx)
}

// FilterLogs runs a log filter query on a chain.
func (c *Client) FilterLogs(ctx context.Context, chainID uint64, q ethereum.FilterQuery) ([]types.Log, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return conn.FilterLogs(ctx, q)
}

// ValidateConnectivity probes every configured chain and reports which
// endpoints answer with the expected chainId.
func (c *Client) ValidateConnectivity(ctx context.Context) map[uint64]bool {
	out := make(map[uint64]bool, len(c.rpcURLs))
	for id := range c.rpcURLs {
		out[id] = c.probe(ctx, id)
	}
	return out
}

func (c *Client) probe(ctx context.Context, chainID uint64) bool {
	conn, err := c.conn(chainID)
	if err != nil {
		obslog.L().Warn("rpc_unreachable", zap.Uint64("chain_id", chainID), zap.Error(err))
		return false
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	got, err := conn.ChainID(ctx)
	if err != nil {
		obslog.L().Warn("rpc_unreachable", zap.Uint64("chain_id", chainID), zap.Error(err))
		return false
	}
	if got.Uint64() != chainID {
		obslog.L().Warn("rpc_chain_id_mismatch",
			zap.Uint64("configured", chainID),
			zap.Uint64("reported", got.Uint64()),
		)
		return false
	}
	return true
}
