package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// settlerDerivationPath is the fixed HD path of the server's signing key.
// The derived address must be the escrow contract's configured settler.
const settlerDerivationPath = "m/44'/60'/0'/0/0"

// Signer holds the server's one secp256k1 key, derived from the mnemonic
// at startup.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner derives the settler key from a BIP-39 mnemonic.
func NewSigner(mnemonic string) (*Signer, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("parse mnemonic: %w", err)
	}
	path := hdwallet.MustParseDerivationPath(settlerDerivationPath)
	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive settler account: %w", err)
	}
	key, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("export settler key: %w", err)
	}
	return &Signer{key: key, address: account.Address}, nil
}

// Address returns the settler address.
func (s *Signer) Address() common.Address { return s.address }

// SignTx signs a transaction for the given chain.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
