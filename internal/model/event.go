package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind identifies a ledger event.
type EventKind string

const (
	EventFunded    EventKind = "FUNDED"
	EventWithdrawn EventKind = "WITHDRAWN"
)

// Event is a log entry emitted by a contract during a transaction.
// Events of reverted calls are discarded.
type Event struct {
	Kind    EventKind
	Account common.Address
	Amount  *uint256.Int
	// Funders is only set on WITHDRAWN events.
	Funders []common.Address
}
