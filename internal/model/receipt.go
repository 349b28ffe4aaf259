package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TxStatus is the outcome of a submitted transaction.
type TxStatus string

const (
	TxSuccess  TxStatus = "SUCCESS"
	TxReverted TxStatus = "REVERTED"
)

// Receipt describes one executed transaction, successful or reverted.
type Receipt struct {
	TxHash    common.Hash
	Method    string
	From      common.Address
	To        common.Address
	Value     *uint256.Int
	GasUsed   uint64
	GasPrice  *uint256.Int
	Fee       *uint256.Int
	Status    TxStatus
	Err       error
	Events    []Event
	Timestamp time.Time
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool { return r.Status == TxSuccess }

// ErrString returns the revert reason, or "" for successful transactions.
func (r *Receipt) ErrString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
