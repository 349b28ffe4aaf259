package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"FundMe/internal/model"
)

type txState struct {
	ctx     context.Context
	gasUsed uint64
	events  []model.Event
}

// Call is one frame of a running transaction. Caller is the message sender,
// Self the account whose code is executing.
type Call struct {
	chain  *Chain
	tx     *txState
	Caller common.Address
	Self   common.Address
	Value  *uint256.Int
	depth  int
}

// Context returns the context the transaction was submitted with.
func (c *Call) Context() context.Context { return c.tx.ctx }

// UseGas charges n gas to the transaction. Gas is not refunded on revert.
func (c *Call) UseGas(n uint64) { c.tx.gasUsed += n }

// Emit appends an event; it is dropped if this frame or any parent reverts.
func (c *Call) Emit(e model.Event) { c.tx.events = append(c.tx.events, e) }

// BalanceOf reads a balance from inside the transaction.
func (c *Call) BalanceOf(addr common.Address) *uint256.Int { return c.chain.balanceOf(addr) }

// Call sends value from Self to `to` and runs fn as the callee. Changes made by
// the callee are reverted if fn fails; the error is returned to the caller.
func (c *Call) Call(to common.Address, value *uint256.Int, fn func(*Call) error) error {
	if value == nil {
		value = new(uint256.Int)
	}
	if c.depth+1 > c.chain.maxDepth {
		return ErrCallDepth
	}
	c.UseGas(GasCall)
	if !value.IsZero() {
		c.UseGas(GasCallValue)
	}

	snap := c.chain.snapshot(c.tx)
	if err := c.chain.move(c.Self, to, value); err != nil {
		c.chain.revert(snap, c.tx)
		return err
	}
	if fn == nil {
		return nil
	}
	sub := &Call{chain: c.chain, tx: c.tx, Caller: c.Self, Self: to, Value: value.Clone(), depth: c.depth + 1}
	if err := fn(sub); err != nil {
		c.chain.revert(snap, c.tx)
		return err
	}
	return nil
}

// Transfer sends amount from Self to `to`, running the recipient's receive hook if it has one.
func (c *Call) Transfer(to common.Address, amount *uint256.Int) error {
	return c.Call(to, amount, func(sub *Call) error {
		r, ok := c.chain.receivers[to]
		if !ok {
			return nil
		}
		return r.Receive(sub, sub.Caller, amount)
	})
}
