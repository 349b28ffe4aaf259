package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrFeedUnavailable is returned when the feed is stale, unreachable or misconfigured.
	ErrFeedUnavailable = errors.New("pricefeed: feed unavailable")
	// ErrArithmeticOverflow is returned when a conversion exceeds 256 bits.
	ErrArithmeticOverflow = errors.New("pricefeed: arithmetic overflow")
)

// Price is one reported round of the feed.
type Price struct {
	RoundID   *big.Int
	Answer    *big.Int // USD per native unit, scaled by 10^Decimals
	Decimals  uint8
	UpdatedAt time.Time
}

// Feed reports the USD price of the native settlement asset.
type Feed interface {
	LatestPrice(ctx context.Context) (Price, error)
	Address() common.Address
	Description() string
}
