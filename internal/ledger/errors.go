package ledger

import (
	"errors"

	"FundMe/internal/chain"
	"FundMe/internal/pricefeed"
)

// Sentinel errors. Every error aborts the enclosing transaction with no partial effects.
var (
	ErrInsufficientFunding = errors.New("fundme: you need to spend more ETH")
	ErrNotOwner            = errors.New("fundme: caller is not the owner")
	ErrTransferFailed      = errors.New("fundme: transfer to owner failed")
	ErrIndexOutOfRange     = errors.New("fundme: funder index out of range")
	ErrNotPayable          = errors.New("fundme: function does not accept value")
	ErrWrongContract       = errors.New("fundme: call is not addressed to this contract")
	ErrNilPriceFeed        = errors.New("fundme: price feed is required")
	ErrStateMismatch       = errors.New("fundme: saved state does not match this contract")

	ErrFeedUnavailable    = pricefeed.ErrFeedUnavailable
	ErrArithmeticOverflow = pricefeed.ErrArithmeticOverflow
)

// ErrorKind is a stable, programmatic name for a failure.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInsufficientFunding ErrorKind = "InsufficientFunding"
	KindNotOwner            ErrorKind = "NotOwner"
	KindTransferFailed      ErrorKind = "TransferFailed"
	KindFeedUnavailable     ErrorKind = "FeedUnavailable"
	KindArithmeticOverflow  ErrorKind = "ArithmeticOverflow"
	KindIndexOutOfRange     ErrorKind = "IndexOutOfRange"
	KindNotPayable          ErrorKind = "NotPayable"
	KindInsufficientBalance ErrorKind = "InsufficientBalance"
	KindOutOfGas            ErrorKind = "OutOfGas"
	KindNonceMismatch       ErrorKind = "NonceMismatch"
	KindUnknown             ErrorKind = "Unknown"
)

// Kind classifies err. TransferFailed wins over the transfer's underlying cause.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailed
	case errors.Is(err, ErrNotOwner):
		return KindNotOwner
	case errors.Is(err, ErrInsufficientFunding):
		return KindInsufficientFunding
	case errors.Is(err, ErrFeedUnavailable):
		return KindFeedUnavailable
	case errors.Is(err, ErrArithmeticOverflow):
		return KindArithmeticOverflow
	case errors.Is(err, ErrIndexOutOfRange):
		return KindIndexOutOfRange
	case errors.Is(err, ErrNotPayable):
		return KindNotPayable
	case errors.Is(err, chain.ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, chain.ErrOutOfGas):
		return KindOutOfGas
	case errors.Is(err, chain.ErrNonceMismatch):
		return KindNonceMismatch
	default:
		return KindUnknown
	}
}

// IsRetryable returns true if the same call may succeed later or with more value.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case KindInsufficientFunding, KindTransferFailed, KindFeedUnavailable, KindInsufficientBalance:
		return true
	default:
		return false
	}
}
