package pricefeed

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Precision is the fixed-point precision of native amounts and USD values.
const Precision = 18

var oneUnit = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Precision))

// Normalize scales the feed answer to 18 decimals.
func Normalize(p Price) (*uint256.Int, error) {
	if p.Answer == nil || p.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive answer %v", ErrFeedUnavailable, p.Answer)
	}
	answer, overflow := uint256.FromBig(p.Answer)
	if overflow {
		return nil, ErrArithmeticOverflow
	}

	if p.Decimals <= Precision {
		scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(Precision-p.Decimals)))
		out, overflow := new(uint256.Int).MulOverflow(answer, scale)
		if overflow {
			return nil, ErrArithmeticOverflow
		}
		return out, nil
	}
	if p.Decimals-Precision > 77 {
		// 10^78 does not fit in 256 bits; every answer rounds to zero
		return nil, fmt.Errorf("%w: %d decimals", ErrFeedUnavailable, p.Decimals)
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(p.Decimals-Precision)))
	return new(uint256.Int).Div(answer, scale), nil
}

// ToUSD converts a native amount (smallest unit) into its 18-decimal USD value.
func ToUSD(amount *uint256.Int, p Price) (*uint256.Int, error) {
	price, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, price)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.Div(product, oneUnit), nil
}
