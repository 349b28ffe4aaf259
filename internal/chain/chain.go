package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/model"
)

// Journal is contract state that must roll back together with balances.
type Journal interface {
	Snapshot() any
	Revert(snapshot any)
}

// Receiver is invoked when value is transferred to an account, like a contract's receive function.
// A returned error rejects the transfer.
type Receiver interface {
	Receive(call *Call, from common.Address, amount *uint256.Int) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(call *Call, from common.Address, amount *uint256.Int) error

func (f ReceiverFunc) Receive(call *Call, from common.Address, amount *uint256.Int) error {
	return f(call, from, amount)
}

// Listener observes every executed transaction. Listeners run after the chain lock
// is released and may read chain state.
type Listener func(r *model.Receipt)

// Tx is a top-level transaction. When Nonce is set it must equal the sender's
// current nonce, so a signed transaction executes at most once.
type Tx struct {
	From     common.Address
	To       common.Address
	Value    *uint256.Int
	GasLimit uint64
	Method   string
	Nonce    *uint64
}

// Chain is a serialized, in-process execution environment: it custodies native
// balances and runs one transaction at a time with all-or-nothing semantics.
type Chain struct {
	mu        sync.RWMutex
	balances  map[common.Address]*uint256.Int
	nonces    map[common.Address]uint64
	receivers map[common.Address]Receiver
	contracts map[common.Address]bool
	journals  []Journal
	listeners []Listener
	gasPrice  *uint256.Int
	maxDepth  int
	now       func() time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithGasPrice sets the price charged per unit of gas.
func WithGasPrice(price *uint256.Int) Option {
	return func(c *Chain) { c.gasPrice = price.Clone() }
}

// WithMaxDepth limits nested call depth.
func WithMaxDepth(depth int) Option {
	return func(c *Chain) { c.maxDepth = depth }
}

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// New creates an empty chain.
func New(opts ...Option) *Chain {
	c := &Chain{
		balances:  make(map[common.Address]*uint256.Int),
		nonces:    make(map[common.Address]uint64),
		receivers: make(map[common.Address]Receiver),
		contracts: make(map[common.Address]bool),
		gasPrice:  DefaultGasPrice.Clone(),
		maxDepth:  DefaultMaxDepth,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GasPrice returns the configured gas price.
func (c *Chain) GasPrice() *uint256.Int { return c.gasPrice.Clone() }

// SetBalance allocates funds outside of any transaction (genesis, tests).
func (c *Chain) SetBalance(addr common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = amount.Clone()
}

// BalanceOf returns the balance of addr. Must not be called from inside a transaction; use Call.BalanceOf.
func (c *Chain) BalanceOf(addr common.Address) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceOf(addr)
}

// Nonce returns the number of transactions sent from addr.
func (c *Chain) Nonce(addr common.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonces[addr]
}

// SetReceiver installs a receive hook for addr, or removes it when r is nil.
func (c *Chain) SetReceiver(addr common.Address, r Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil {
		delete(c.receivers, addr)
		return
	}
	c.receivers[addr] = r
}

// Subscribe registers a listener for executed transactions.
func (c *Chain) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State is a read-only view of committed chain state, valid only inside View.
type State struct{ c *Chain }

// BalanceOf returns the committed balance of addr.
func (s State) BalanceOf(addr common.Address) *uint256.Int { return s.c.balanceOf(addr) }

// Accounts returns a copy of all balances and nonces.
func (s State) Accounts() (map[common.Address]*uint256.Int, map[common.Address]uint64) {
	return s.c.accounts()
}

// View runs fn under the read lock so it observes only committed state.
func (c *Chain) View(fn func(s State)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(State{c: c})
}

// Accounts returns a copy of all balances and nonces.
func (c *Chain) Accounts() (map[common.Address]*uint256.Int, map[common.Address]uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accounts()
}

func (c *Chain) accounts() (map[common.Address]*uint256.Int, map[common.Address]uint64) {
	balances := make(map[common.Address]*uint256.Int, len(c.balances))
	for a, b := range c.balances {
		balances[a] = b.Clone()
	}
	nonces := make(map[common.Address]uint64, len(c.nonces))
	for a, n := range c.nonces {
		nonces[a] = n
	}
	return balances, nonces
}

// Restore replaces balances and nonces, typically from a persisted state file.
func (c *Chain) Restore(balances map[common.Address]*uint256.Int, nonces map[common.Address]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances = make(map[common.Address]*uint256.Int, len(balances))
	for a, b := range balances {
		c.balances[a] = b.Clone()
	}
	c.nonces = make(map[common.Address]uint64, len(nonces))
	for a, n := range nonces {
		c.nonces[a] = n
	}
}

// Deploy creates a contract account at the address derived from from's nonce.
// construct runs under the chain lock and must not call back into the chain.
func (c *Chain) Deploy(from common.Address, construct func(addr common.Address) (Journal, error)) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := crypto.CreateAddress(from, c.nonces[from])
	if c.contracts[addr] {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	j, err := construct(addr)
	if err != nil {
		return common.Address{}, err
	}
	c.nonces[from]++
	c.contracts[addr] = true
	if j != nil {
		c.journals = append(c.journals, j)
	}
	log.WithFields(log.Fields{"deployer": from.Hex(), "address": addr.Hex()}).Info("contract deployed")
	return addr, nil
}

// Submit executes fn as one transaction. Value moves From -> To before fn runs.
// A nil fn is a plain transfer and runs the receive hook of To, if any. If fn fails, every balance and journal change is rolled back and the error is
// returned together with a REVERTED receipt. Gas is charged either way.
func (c *Chain) Submit(ctx context.Context, tx Tx, fn func(*Call) error) (*model.Receipt, error) {
	receipt, listeners, err := c.execute(ctx, tx, fn)
	if receipt == nil {
		return nil, err
	}
	for _, l := range listeners {
		l(receipt)
	}
	return receipt, err
}

func (c *Chain) execute(ctx context.Context, tx Tx, fn func(*Call) error) (*model.Receipt, []Listener, error) {
	if tx.Value == nil {
		tx.Value = new(uint256.Int)
	}
	if tx.GasLimit == 0 {
		tx.GasLimit = DefaultGasLimit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.Nonce != nil && *tx.Nonce != c.nonces[tx.From] {
		return nil, nil, fmt.Errorf("%w: %s sent %d, expected %d", ErrNonceMismatch, tx.From.Hex(), *tx.Nonce, c.nonces[tx.From])
	}
	if fn == nil {
		if r, ok := c.receivers[tx.To]; ok {
			fn = func(call *Call) error { return r.Receive(call, call.Caller, call.Value) }
		}
	}

	maxFee, overflow := new(uint256.Int).MulOverflow(c.gasPrice, uint256.NewInt(tx.GasLimit))
	if overflow {
		return nil, nil, fmt.Errorf("%w: gas limit %d", ErrInsufficientBalance, tx.GasLimit)
	}
	need, overflow := new(uint256.Int).AddOverflow(maxFee, tx.Value)
	if overflow || c.balanceOf(tx.From).Lt(need) {
		return nil, nil, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance,
			tx.From.Hex(), c.balanceOf(tx.From).Dec(), need.Dec())
	}

	state := &txState{ctx: ctx, gasUsed: GasTx}
	snap := c.snapshot(state)
	root := &Call{chain: c, tx: state, Caller: tx.From, Self: tx.To, Value: tx.Value.Clone()}

	err := c.move(tx.From, tx.To, tx.Value)
	if err == nil && fn != nil {
		err = fn(root)
	}
	if err == nil && state.gasUsed > tx.GasLimit {
		err = ErrOutOfGas
	}
	if err != nil {
		c.revert(snap, state)
	}
	if state.gasUsed > tx.GasLimit {
		state.gasUsed = tx.GasLimit
	}

	fee := new(uint256.Int).Mul(c.gasPrice, uint256.NewInt(state.gasUsed))
	c.balances[tx.From] = new(uint256.Int).Sub(c.balanceOf(tx.From), fee)
	nonce := c.nonces[tx.From]
	c.nonces[tx.From]++

	receipt := &model.Receipt{
		TxHash:    txHash(tx.From, tx.To, nonce),
		Method:    tx.Method,
		From:      tx.From,
		To:        tx.To,
		Value:     tx.Value.Clone(),
		GasUsed:   state.gasUsed,
		GasPrice:  c.gasPrice.Clone(),
		Fee:       fee,
		Status:    model.TxSuccess,
		Events:    state.events,
		Timestamp: c.now(),
	}
	if err != nil {
		receipt.Status = model.TxReverted
		receipt.Err = err
		receipt.Events = nil
		log.WithFields(log.Fields{"tx": receipt.TxHash.Hex(), "method": tx.Method, "from": tx.From.Hex()}).
			Warnf("transaction reverted: %v", err)
	}

	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	return receipt, listeners, err
}

func txHash(from, to common.Address, nonce uint64) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256Hash(from.Bytes(), to.Bytes(), n[:])
}

func (c *Chain) balanceOf(addr common.Address) *uint256.Int {
	if b, ok := c.balances[addr]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// move never mutates stored balances in place, so snapshots can share pointers.
func (c *Chain) move(from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		if c.balanceOf(from).Lt(amount) {
			return fmt.Errorf("%w: %s", ErrInsufficientBalance, from.Hex())
		}
		return nil
	}
	fromBal := c.balanceOf(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, sends %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amount.Dec())
	}
	toBal, overflow := new(uint256.Int).AddOverflow(c.balanceOf(to), amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s", ErrInsufficientBalance, to.Hex())
	}
	c.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	c.balances[to] = toBal
	return nil
}

type snapshot struct {
	balances map[common.Address]*uint256.Int
	journals []any
	events   int
}

func (c *Chain) snapshot(state *txState) snapshot {
	s := snapshot{
		balances: make(map[common.Address]*uint256.Int, len(c.balances)),
		journals: make([]any, len(c.journals)),
		events:   len(state.events),
	}
	for a, b := range c.balances {
		s.balances[a] = b
	}
	for i, j := range c.journals {
		s.journals[i] = j.Snapshot()
	}
	return s
}

func (c *Chain) revert(s snapshot, state *txState) {
	c.balances = s.balances
	for i, j := range c.journals {
		j.Revert(s.journals[i])
	}
	state.events = state.events[:s.events]
}
