package model

import (
	"time"

	"github.com/holiman/uint256"
)

// PriceCheck records one scheduled query of the price feed.
type PriceCheck struct {
	Feed       string
	Answer     string // raw feed answer, decimal string
	Decimals   uint8
	USDPerUnit *uint256.Int // 18-decimal USD value of one native unit
	OK         bool
	Error      string
	CheckedAt  time.Time
}
