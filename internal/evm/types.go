package evm

import "github.com/ethereum/go-ethereum/common"

// CallMsg describes a read-only contract call.
type CallMsg struct {
	From *common.Address // optional caller
	To   common.Address  // contract address
	Data []byte          // ABI-encoded call data
}

// Receipt status values per the Ethereum JSON-RPC spec.
const (
	ReceiptStatusFailed    uint64 = 0
	ReceiptStatusSucceeded uint64 = 1
)

// Log is one event emitted during transaction execution.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
	Logs        []Log
}

// Head is a newHeads subscription notification.
type Head struct {
	Number uint64
	Hash   common.Hash
}
