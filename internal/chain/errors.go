package chain

import "errors"

var (
	ErrInsufficientBalance = errors.New("chain: insufficient balance")
	ErrOutOfGas            = errors.New("chain: out of gas")
	ErrCallDepth           = errors.New("chain: max call depth exceeded")
	ErrAlreadyDeployed     = errors.New("chain: address already in use")
	ErrNonceMismatch       = errors.New("chain: nonce mismatch")
)
