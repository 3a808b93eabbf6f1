package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Client defines the Ethereum JSON-RPC HTTP interface used by the core.
type Client interface {
	// ChainID retrieves the chain identifier (eth_chainId).
	ChainID(ctx context.Context) (*big.Int, error)

	// BlockNumber retrieves the latest block number (eth_blockNumber).
	BlockNumber(ctx context.Context) (uint64, error)

	// CallContract executes a read-only contract call against the latest
	// block (eth_call) and returns the raw ABI-encoded result.
	CallContract(ctx context.Context, msg CallMsg) ([]byte, error)

	// PendingNonceAt retrieves the pending-state nonce for an account
	// (eth_getTransactionCount).
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// GasPrice retrieves the current gas price (eth_gasPrice).
	GasPrice(ctx context.Context) (*big.Int, error)

	// SendRawTransaction broadcasts a signed RLP-encoded transaction
	// (eth_sendRawTransaction) and returns its hash.
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	// TransactionReceipt retrieves the receipt for a transaction
	// (eth_getTransactionReceipt). Returns nil, nil while the transaction
	// is still pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}
