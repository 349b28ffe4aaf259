package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FunderRecord is one contributor's cumulative stake.
type FunderRecord struct {
	Account common.Address
	Amount  *uint256.Int
}

// LedgerStatus is a consistent read of the whole ledger.
type LedgerStatus struct {
	Contract  common.Address
	Owner     common.Address
	PriceFeed common.Address
	Balance   *uint256.Int
	Funders   []FunderRecord
}

// Empty reports whether the ledger holds no funders.
func (s LedgerStatus) Empty() bool { return len(s.Funders) == 0 }
