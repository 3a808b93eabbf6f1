// Package chain provides the ledger-facing reader and writer: cached
// polling of account state, and submission plus confirmation tracking of
// state-changing operations.
package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrSignerRejected is returned by a Signer when the user declines to sign.
var ErrSignerRejected = errors.New("signer rejected the transaction")

// Signer authorizes state-changing operations on behalf of an account.
// Key custody is outside the core; this is the seam a wallet plugs into.
type Signer interface {
	// Address returns the account the signer controls.
	Address() common.Address

	// SignTx signs the transaction for the given chain, or returns
	// ErrSignerRejected when the user declines.
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalSigner signs with an in-process secp256k1 key. Development use only.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner creates a signer from a hex-encoded private key.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the account the signer controls.
func (s *LocalSigner) Address() common.Address {
	return s.addr
}

// SignTx signs the transaction with EIP-155 replay protection.
func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

// Compile-time interface check.
var _ Signer = (*LocalSigner)(nil)
