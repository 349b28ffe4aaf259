package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/chain"
	"FundMe/internal/model"
	"FundMe/internal/pricefeed"
)

// MinimumUSD is the smallest accepted contribution, $50 with 18 decimals.
var MinimumUSD = new(uint256.Int).Mul(uint256.NewInt(50), uint256.NewInt(1_000_000_000_000_000_000))

// DefaultFeedTimeout bounds one price read made while a transaction holds the chain.
const DefaultFeedTimeout = 5 * time.Second

// Method names recorded on receipts.
const (
	MethodFund            = "fund"
	MethodWithdraw        = "withdraw"
	MethodCheaperWithdraw = "cheaperWithdraw"
)

// FundMe is the crowdfunding contract. Its balance is custodied by the chain;
// mutating methods run inside a chain transaction and are serialized by it.
type FundMe struct {
	chain     *chain.Chain
	feed      pricefeed.Feed
	address   common.Address
	owner     common.Address
	priceFeed common.Address

	feedTimeout time.Duration

	funders []common.Address
	amounts map[common.Address]*uint256.Int
}

// Deploy constructs the contract with deployer as its owner.
func Deploy(c *chain.Chain, deployer common.Address, feed pricefeed.Feed) (*FundMe, error) {
	if feed == nil {
		return nil, ErrNilPriceFeed
	}
	f := &FundMe{
		chain:     c,
		feed:      feed,
		owner:     deployer,
		priceFeed: feed.Address(),
		amounts:   make(map[common.Address]*uint256.Int),

		feedTimeout: DefaultFeedTimeout,
	}
	if _, err := c.Deploy(deployer, func(addr common.Address) (chain.Journal, error) {
		f.address = addr
		return f, nil
	}); err != nil {
		return nil, fmt.Errorf("deploy fundme: %w", err)
	}
	// plain transfers to the contract count as funding
	c.SetReceiver(f.address, chain.ReceiverFunc(func(call *chain.Call, _ common.Address, _ *uint256.Int) error {
		return f.Fund(call)
	}))
	log.WithFields(log.Fields{
		"address":    f.address.Hex(),
		"owner":      f.owner.Hex(),
		"price_feed": f.priceFeed.Hex(),
	}).Info("fundme deployed")
	return f, nil
}

// Address is the contract account holding the funds.
func (f *FundMe) Address() common.Address { return f.address }

// Owner is the only account allowed to withdraw.
func (f *FundMe) Owner() common.Address { return f.owner }

// PriceFeed is the address of the configured price feed.
func (f *FundMe) PriceFeed() common.Address { return f.priceFeed }

// Feed returns the price feed used for conversions.
func (f *FundMe) Feed() pricefeed.Feed { return f.feed }

// SetFeedTimeout changes the bound on price reads made by Fund. Call it before
// submitting transactions; d <= 0 keeps the default.
func (f *FundMe) SetFeedTimeout(d time.Duration) {
	if d > 0 {
		f.feedTimeout = d
	}
}

// Fund records the value attached to call for its caller.
func (f *FundMe) Fund(call *chain.Call) error {
	if call.Self != f.address {
		return ErrWrongContract
	}

	call.UseGas(chain.GasExternalRead)
	ctx, cancel := context.WithTimeout(call.Context(), f.feedTimeout)
	price, err := f.feed.LatestPrice(ctx)
	cancel()
	if err != nil {
		if errors.Is(err, ErrFeedUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	usd, err := pricefeed.ToUSD(call.Value, price)
	if err != nil {
		return err
	}
	if usd.Lt(MinimumUSD) {
		return fmt.Errorf("%w: %s wei is worth %s, minimum %s", ErrInsufficientFunding,
			call.Value.Dec(), usd.Dec(), MinimumUSD.Dec())
	}

	call.UseGas(chain.GasStorageRead)
	prev := f.amountOf(call.Caller)
	total, overflow := new(uint256.Int).AddOverflow(prev, call.Value)
	if overflow {
		return ErrArithmeticOverflow
	}
	if prev.IsZero() {
		// push: read length, write slot, bump length
		call.UseGas(chain.GasStorageSet + chain.GasStorageRead + chain.GasStorageSet + chain.GasStorageReset)
		f.funders = append(f.funders, call.Caller)
	} else {
		call.UseGas(chain.GasStorageReset)
	}
	f.amounts[call.Caller] = total

	call.Emit(model.Event{Kind: model.EventFunded, Account: call.Caller, Amount: call.Value.Clone()})
	return nil
}

// Withdraw sends the whole balance to the owner and clears every funder record.
// The funder count is read from storage on every iteration.
func (f *FundMe) Withdraw(call *chain.Call) error {
	if err := f.onlyOwner(call); err != nil {
		return err
	}
	balance := call.BalanceOf(f.address)

	var cleared []common.Address
	for i := 0; ; i++ {
		call.UseGas(chain.GasStorageRead)
		if i >= len(f.funders) {
			break
		}
		call.UseGas(chain.GasStorageRead)
		funder := f.funders[i]
		call.UseGas(chain.GasStorageReset)
		delete(f.amounts, funder)
		cleared = append(cleared, funder)
	}
	return f.payout(call, balance, cleared)
}

// CheaperWithdraw behaves exactly like Withdraw but copies the funder list to
// memory once instead of re-reading its length from storage.
func (f *FundMe) CheaperWithdraw(call *chain.Call) error {
	if err := f.onlyOwner(call); err != nil {
		return err
	}
	balance := call.BalanceOf(f.address)

	call.UseGas(chain.GasStorageRead)
	funders := make([]common.Address, len(f.funders))
	call.UseGas(chain.GasStorageRead * uint64(len(f.funders)))
	copy(funders, f.funders)

	for _, funder := range funders {
		call.UseGas(chain.GasStorageReset)
		delete(f.amounts, funder)
	}
	return f.payout(call, balance, funders)
}

// payout clears the funder list before transferring, so a re-entrant call
// during the transfer sees an empty ledger.
func (f *FundMe) payout(call *chain.Call, balance *uint256.Int, funders []common.Address) error {
	call.UseGas(chain.GasStorageReset)
	f.funders = nil

	if err := call.Transfer(f.owner, balance); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	call.Emit(model.Event{Kind: model.EventWithdrawn, Account: f.owner, Amount: balance, Funders: funders})
	return nil
}

func (f *FundMe) onlyOwner(call *chain.Call) error {
	if call.Self != f.address {
		return ErrWrongContract
	}
	if call.Caller != f.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, call.Caller.Hex())
	}
	if !call.Value.IsZero() {
		return ErrNotPayable
	}
	return nil
}

func (f *FundMe) amountOf(addr common.Address) *uint256.Int {
	if a, ok := f.amounts[addr]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// AddressToAmountFunded returns the cumulative contribution of addr, zero if it never funded.
func (f *FundMe) AddressToAmountFunded(addr common.Address) *uint256.Int {
	var out *uint256.Int
	f.chain.View(func(chain.State) { out = f.amountOf(addr) })
	return out
}

// Funder returns the index-th funder in insertion order.
func (f *FundMe) Funder(index int) (common.Address, error) {
	var (
		out common.Address
		err error
	)
	f.chain.View(func(chain.State) {
		if index < 0 || index >= len(f.funders) {
			err = fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(f.funders))
			return
		}
		out = f.funders[index]
	})
	return out, err
}

// FunderCount returns the number of current funders.
func (f *FundMe) FunderCount() int {
	var n int
	f.chain.View(func(chain.State) { n = len(f.funders) })
	return n
}

// Balance returns the native balance held by the contract.
func (f *FundMe) Balance() *uint256.Int {
	return f.chain.BalanceOf(f.address)
}

// Status returns owner, feed, balance and every funder record from one consistent read.
func (f *FundMe) Status() model.LedgerStatus {
	var st model.LedgerStatus
	f.chain.View(func(s chain.State) {
		st = model.LedgerStatus{
			Contract:  f.address,
			Owner:     f.owner,
			PriceFeed: f.priceFeed,
			Balance:   s.BalanceOf(f.address),
			Funders:   make([]model.FunderRecord, 0, len(f.funders)),
		}
		for _, a := range f.funders {
			st.Funders = append(st.Funders, model.FunderRecord{Account: a, Amount: f.amountOf(a)})
		}
	})
	return st
}

type contractState struct {
	funders []common.Address
	amounts map[common.Address]*uint256.Int
}

// Snapshot implements chain.Journal.
func (f *FundMe) Snapshot() any {
	s := contractState{
		funders: append([]common.Address(nil), f.funders...),
		amounts: make(map[common.Address]*uint256.Int, len(f.amounts)),
	}
	for a, v := range f.amounts {
		s.amounts[a] = v.Clone()
	}
	return s
}

// Revert implements chain.Journal.
func (f *FundMe) Revert(snapshot any) {
	s := snapshot.(contractState)
	f.funders = s.funders
	f.amounts = s.amounts
}
