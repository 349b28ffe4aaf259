package ledger

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FundMe/internal/chain"
	"FundMe/internal/model"
	"FundMe/internal/pricefeed"
)

var sendValue = chain.Ether(1)

type fixture struct {
	chain    *chain.Chain
	feed     *pricefeed.MockAggregator
	fm       *FundMe
	deployer common.Address
	accounts []common.Address
}

func setup(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{chain: chain.New()}
	for i := 0; i < 7; i++ {
		addr := common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		fx.accounts = append(fx.accounts, addr)
		fx.chain.SetBalance(addr, chain.Ether(10000))
	}
	fx.deployer = fx.accounts[0]

	_, err := fx.chain.Deploy(fx.deployer, func(addr common.Address) (chain.Journal, error) {
		fx.feed = pricefeed.NewMockAggregator(addr, pricefeed.MockDecimals, pricefeed.MockInitialAnswer)
		return nil, nil
	})
	require.NoError(t, err)

	fx.fm, err = Deploy(fx.chain, fx.deployer, fx.feed)
	require.NoError(t, err)
	return fx
}

func (fx *fixture) fund(from common.Address, value *uint256.Int) (*model.Receipt, error) {
	return fx.chain.Submit(context.Background(), chain.Tx{From: from, To: fx.fm.Address(), Value: value, Method: MethodFund}, fx.fm.Fund)
}

func (fx *fixture) call(from common.Address, method string, fn func(*chain.Call) error) (*model.Receipt, error) {
	return fx.chain.Submit(context.Background(), chain.Tx{From: from, To: fx.fm.Address(), Method: method}, fn)
}

// sumOfRecords checks the conservation invariant.
func (fx *fixture) sumOfRecords() *uint256.Int {
	total := new(uint256.Int)
	for _, r := range fx.fm.Status().Funders {
		total.Add(total, r.Amount)
	}
	return total
}

type withdrawFn struct {
	name string
	fn   func(fm *FundMe) func(*chain.Call) error
}

var withdrawals = []withdrawFn{
	{MethodWithdraw, func(fm *FundMe) func(*chain.Call) error { return fm.Withdraw }},
	{MethodCheaperWithdraw, func(fm *FundMe) func(*chain.Call) error { return fm.CheaperWithdraw }},
}

func TestDeploy_SetsPriceFeedAndOwner(t *testing.T) {
	fx := setup(t)
	assert.Equal(t, fx.feed.Address(), fx.fm.PriceFeed())
	assert.Equal(t, fx.deployer, fx.fm.Owner())
	assert.True(t, fx.fm.Balance().IsZero())
}

func TestDeploy_RequiresFeed(t *testing.T) {
	_, err := Deploy(chain.New(), common.HexToAddress("0x01"), nil)
	assert.ErrorIs(t, err, ErrNilPriceFeed)
}

func TestFund_FailsWithoutEnoughETH(t *testing.T) {
	fx := setup(t)
	before := fx.chain.BalanceOf(fx.deployer)

	r, err := fx.fund(fx.deployer, nil)
	assert.ErrorIs(t, err, ErrInsufficientFunding)
	assert.Equal(t, KindInsufficientFunding, Kind(err))
	assert.Contains(t, err.Error(), "you need to spend more ETH")

	assert.True(t, fx.fm.Balance().IsZero())
	assert.Equal(t, 0, fx.fm.FunderCount())
	// only the gas fee left the caller
	spent := new(uint256.Int).Sub(before, fx.chain.BalanceOf(fx.deployer))
	assert.Equal(t, r.Fee.Dec(), spent.Dec())
}

func TestFund_MinimumBoundary(t *testing.T) {
	fx := setup(t)
	// $50 at $2000 per unit is 0.025 units
	exact := new(uint256.Int).Div(chain.Ether(1), uint256.NewInt(40))
	below := new(uint256.Int).Sub(exact, uint256.NewInt(1))

	_, err := fx.fund(fx.accounts[1], below)
	assert.ErrorIs(t, err, ErrInsufficientFunding)
	assert.True(t, fx.fm.AddressToAmountFunded(fx.accounts[1]).IsZero())

	_, err = fx.fund(fx.accounts[1], exact)
	require.NoError(t, err)
	assert.Equal(t, exact.Dec(), fx.fm.AddressToAmountFunded(fx.accounts[1]).Dec())
}

func TestFund_UpdatesAmountFundedMapping(t *testing.T) {
	fx := setup(t)
	r, err := fx.fund(fx.deployer, sendValue)
	require.NoError(t, err)

	assert.Equal(t, sendValue.Dec(), fx.fm.AddressToAmountFunded(fx.deployer).Dec())
	require.Len(t, r.Events, 1)
	assert.Equal(t, model.EventFunded, r.Events[0].Kind)
	assert.Equal(t, fx.deployer, r.Events[0].Account)
}

func TestFund_AddsFunderToArray(t *testing.T) {
	fx := setup(t)
	_, err := fx.fund(fx.deployer, sendValue)
	require.NoError(t, err)

	funder, err := fx.fm.Funder(0)
	require.NoError(t, err)
	assert.Equal(t, fx.deployer, funder)

	_, err = fx.fm.Funder(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = fx.fm.Funder(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestFund_RepeatFundingDoesNotDuplicateFunder(t *testing.T) {
	fx := setup(t)
	a := fx.accounts[2]
	for i := 0; i < 3; i++ {
		_, err := fx.fund(a, sendValue)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fx.fm.FunderCount())
	assert.Equal(t, chain.Ether(3).Dec(), fx.fm.AddressToAmountFunded(a).Dec())

	// after a withdrawal the account is appended again exactly once
	_, err := fx.call(fx.deployer, MethodWithdraw, fx.fm.Withdraw)
	require.NoError(t, err)
	_, err = fx.fund(a, sendValue)
	require.NoError(t, err)
	_, err = fx.fund(a, sendValue)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.fm.FunderCount())
}

func TestFund_FeedUnavailable(t *testing.T) {
	fx := setup(t)
	fx.feed.SetUnavailable(true)

	_, err := fx.fund(fx.accounts[1], sendValue)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.True(t, IsRetryable(err))
	assert.True(t, fx.fm.Balance().IsZero())
	assert.Equal(t, 0, fx.fm.FunderCount())

	fx.feed.SetUnavailable(false)
	_, err = fx.fund(fx.accounts[1], sendValue)
	assert.NoError(t, err)
}

func TestFund_NonPositiveAnswer(t *testing.T) {
	fx := setup(t)
	fx.feed.UpdateAnswer(big.NewInt(0))
	_, err := fx.fund(fx.accounts[1], sendValue)
	assert.Equal(t, KindFeedUnavailable, Kind(err))
}

func TestFund_Overflow(t *testing.T) {
	fx := setup(t)
	rich := common.HexToAddress("0xfeed")
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	fx.chain.SetBalance(rich, new(uint256.Int).Lsh(uint256.NewInt(1), 251))

	_, err := fx.fund(rich, huge)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	assert.False(t, IsRetryable(err))
	assert.True(t, fx.fm.Balance().IsZero())
}

func TestWithdraw_SingleFunder(t *testing.T) {
	for _, w := range withdrawals {
		t.Run(w.name, func(t *testing.T) {
			fx := setup(t)
			_, err := fx.fund(fx.deployer, sendValue)
			require.NoError(t, err)

			contractStart := fx.fm.Balance()
			deployerStart := fx.chain.BalanceOf(fx.deployer)

			r, err := fx.call(fx.deployer, w.name, w.fn(fx.fm))
			require.NoError(t, err)

			assert.True(t, fx.fm.Balance().IsZero())
			// deployerStart + contractStart == deployerEnd + gasCost
			lhs := new(uint256.Int).Add(deployerStart, contractStart)
			rhs := new(uint256.Int).Add(fx.chain.BalanceOf(fx.deployer), r.Fee)
			assert.Equal(t, lhs.Dec(), rhs.Dec())

			assert.True(t, fx.fm.AddressToAmountFunded(fx.deployer).IsZero())
			_, err = fx.fm.Funder(0)
			assert.ErrorIs(t, err, ErrIndexOutOfRange)
		})
	}
}

func TestWithdraw_MultipleFunders(t *testing.T) {
	for _, w := range withdrawals {
		t.Run(w.name, func(t *testing.T) {
			fx := setup(t)
			_, err := fx.fund(fx.deployer, sendValue)
			require.NoError(t, err)
			for i := 1; i < 6; i++ {
				_, err := fx.fund(fx.accounts[i], sendValue)
				require.NoError(t, err)
			}
			assert.Equal(t, 6, fx.fm.FunderCount())

			contractStart := fx.fm.Balance()
			deployerStart := fx.chain.BalanceOf(fx.deployer)
			assert.Equal(t, chain.Ether(6).Dec(), contractStart.Dec())

			r, err := fx.call(fx.deployer, w.name, w.fn(fx.fm))
			require.NoError(t, err)

			assert.True(t, fx.fm.Balance().IsZero())
			lhs := new(uint256.Int).Add(deployerStart, contractStart)
			rhs := new(uint256.Int).Add(fx.chain.BalanceOf(fx.deployer), r.Fee)
			assert.Equal(t, lhs.Dec(), rhs.Dec())

			_, err = fx.fm.Funder(0)
			assert.ErrorIs(t, err, ErrIndexOutOfRange)
			for i := 1; i < 6; i++ {
				assert.True(t, fx.fm.AddressToAmountFunded(fx.accounts[i]).IsZero())
			}

			require.Len(t, r.Events, 1)
			assert.Equal(t, model.EventWithdrawn, r.Events[0].Kind)
			assert.Len(t, r.Events[0].Funders, 6)
			assert.Equal(t, contractStart.Dec(), r.Events[0].Amount.Dec())
		})
	}
}

func TestWithdraw_OnlyOwner(t *testing.T) {
	for _, w := range withdrawals {
		t.Run(w.name, func(t *testing.T) {
			fx := setup(t)
			attacker := fx.accounts[2]
			_, err := fx.fund(attacker, sendValue)
			require.NoError(t, err)
			before := fx.fm.Capture()

			_, err = fx.call(attacker, w.name, w.fn(fx.fm))
			assert.ErrorIs(t, err, ErrNotOwner)
			assert.Equal(t, KindNotOwner, Kind(err))
			assert.False(t, IsRetryable(err))

			after := fx.fm.Capture()
			assert.Equal(t, before.Funders, after.Funders)
			assert.Equal(t, before.Amounts[attacker].Dec(), after.Amounts[attacker].Dec())
			assert.Equal(t, sendValue.Dec(), fx.fm.Balance().Dec())
		})
	}
}

func TestWithdraw_EmptyLedgerSucceeds(t *testing.T) {
	for _, w := range withdrawals {
		t.Run(w.name, func(t *testing.T) {
			fx := setup(t)
			before := fx.chain.BalanceOf(fx.deployer)

			r, err := fx.call(fx.deployer, w.name, w.fn(fx.fm))
			require.NoError(t, err)
			assert.True(t, r.Events[0].Amount.IsZero())

			after := new(uint256.Int).Add(fx.chain.BalanceOf(fx.deployer), r.Fee)
			assert.Equal(t, before.Dec(), after.Dec())
		})
	}
}

func TestWithdraw_RejectsValue(t *testing.T) {
	fx := setup(t)
	_, err := fx.chain.Submit(context.Background(),
		chain.Tx{From: fx.deployer, To: fx.fm.Address(), Value: sendValue, Method: MethodWithdraw}, fx.fm.Withdraw)
	assert.ErrorIs(t, err, ErrNotPayable)
	assert.True(t, fx.fm.Balance().IsZero())
}

func TestCheaperWithdraw_UsesLessGas(t *testing.T) {
	gas := make(map[string]uint64)
	for _, w := range withdrawals {
		fx := setup(t)
		for i := 0; i < 6; i++ {
			_, err := fx.fund(fx.accounts[i], sendValue)
			require.NoError(t, err)
		}
		r, err := fx.call(fx.deployer, w.name, w.fn(fx.fm))
		require.NoError(t, err)
		gas[w.name] = r.GasUsed
	}
	assert.Less(t, gas[MethodCheaperWithdraw], gas[MethodWithdraw])
}

func TestWithdraw_TransferRejectedRollsBack(t *testing.T) {
	for _, w := range withdrawals {
		t.Run(w.name, func(t *testing.T) {
			fx := setup(t)
			for i := 1; i < 4; i++ {
				_, err := fx.fund(fx.accounts[i], sendValue)
				require.NoError(t, err)
			}
			fx.chain.SetReceiver(fx.deployer, chain.ReceiverFunc(func(*chain.Call, common.Address, *uint256.Int) error {
				return errors.New("owner cannot receive")
			}))
			before := fx.fm.Capture()

			_, err := fx.call(fx.deployer, w.name, w.fn(fx.fm))
			assert.ErrorIs(t, err, ErrTransferFailed)
			assert.Equal(t, KindTransferFailed, Kind(err))
			assert.True(t, IsRetryable(err))

			after := fx.fm.Capture()
			assert.Equal(t, before.Funders, after.Funders)
			assert.Equal(t, chain.Ether(3).Dec(), fx.fm.Balance().Dec())
			assert.Equal(t, fx.fm.Balance().Dec(), fx.sumOfRecords().Dec())

			// once the owner accepts funds again the withdrawal goes through
			fx.chain.SetReceiver(fx.deployer, nil)
			_, err = fx.call(fx.deployer, w.name, w.fn(fx.fm))
			require.NoError(t, err)
			assert.True(t, fx.fm.Balance().IsZero())
		})
	}
}

func TestWithdraw_ReentrantOwnerCannotDoubleWithdraw(t *testing.T) {
	for _, w := range withdrawals {
		t.Run(w.name, func(t *testing.T) {
			fx := setup(t)
			for i := 1; i < 4; i++ {
				_, err := fx.fund(fx.accounts[i], sendValue)
				require.NoError(t, err)
			}

			var (
				attacked   bool
				nestedSeen *uint256.Int
				received   = new(uint256.Int)
			)
			fx.chain.SetReceiver(fx.deployer, chain.ReceiverFunc(func(call *chain.Call, _ common.Address, amount *uint256.Int) error {
				received.Add(received, amount)
				if attacked {
					return nil
				}
				attacked = true
				nestedSeen = call.BalanceOf(fx.fm.Address())
				return call.Call(fx.fm.Address(), nil, w.fn(fx.fm))
			}))

			deployerStart := fx.chain.BalanceOf(fx.deployer)
			r, err := fx.call(fx.deployer, w.name, w.fn(fx.fm))
			require.NoError(t, err)

			assert.True(t, attacked)
			assert.True(t, nestedSeen.IsZero())
			assert.Equal(t, chain.Ether(3).Dec(), received.Dec())
			assert.True(t, fx.fm.Balance().IsZero())

			end := new(uint256.Int).Add(fx.chain.BalanceOf(fx.deployer), r.Fee)
			assert.Equal(t, new(uint256.Int).Add(deployerStart, chain.Ether(3)).Dec(), end.Dec())
		})
	}
}

func TestWithdraw_ReentrantFundDuringTransferIsKept(t *testing.T) {
	fx := setup(t)
	_, err := fx.fund(fx.accounts[1], sendValue)
	require.NoError(t, err)

	// the owner refunds part of its payout back into the ledger while receiving it
	fx.chain.SetReceiver(fx.deployer, chain.ReceiverFunc(func(call *chain.Call, from common.Address, amount *uint256.Int) error {
		if from != fx.fm.Address() || amount.IsZero() {
			return nil
		}
		return call.Call(fx.fm.Address(), chain.Ether(1), fx.fm.Fund)
	}))

	_, err = fx.call(fx.deployer, MethodWithdraw, fx.fm.Withdraw)
	require.NoError(t, err)
	assert.Equal(t, chain.Ether(1).Dec(), fx.fm.Balance().Dec())
	assert.Equal(t, 1, fx.fm.FunderCount())
	assert.Equal(t, fx.fm.Balance().Dec(), fx.sumOfRecords().Dec())
}

func TestReceive_PlainTransferFunds(t *testing.T) {
	fx := setup(t)

	_, err := fx.chain.Submit(context.Background(), chain.Tx{From: fx.accounts[1], To: fx.fm.Address(), Value: sendValue}, nil)
	require.NoError(t, err)
	assert.Equal(t, sendValue.Dec(), fx.fm.AddressToAmountFunded(fx.accounts[1]).Dec())
	assert.Equal(t, 1, fx.fm.FunderCount())
	assert.Equal(t, fx.fm.Balance().Dec(), fx.sumOfRecords().Dec())

	// below the minimum the transfer reverts like fund
	r, err := fx.chain.Submit(context.Background(), chain.Tx{From: fx.accounts[2], To: fx.fm.Address(), Value: uint256.NewInt(1000)}, nil)
	assert.ErrorIs(t, err, ErrInsufficientFunding)
	assert.False(t, r.Succeeded())
	assert.Equal(t, 1, fx.fm.FunderCount())
	assert.Equal(t, sendValue.Dec(), fx.fm.Balance().Dec())
}

func TestReceive_TransferFromContractFunds(t *testing.T) {
	fx := setup(t)
	payer := fx.accounts[3]

	// payer acts as a contract forwarding part of its balance to the ledger
	_, err := fx.chain.Submit(context.Background(), chain.Tx{From: fx.accounts[4], To: payer}, func(call *chain.Call) error {
		return call.Transfer(fx.fm.Address(), sendValue)
	})
	require.NoError(t, err)
	assert.Equal(t, sendValue.Dec(), fx.fm.AddressToAmountFunded(payer).Dec())
	assert.Equal(t, fx.fm.Balance().Dec(), fx.sumOfRecords().Dec())
}

// blockingFeed answers only when its context ends.
type blockingFeed struct{ addr common.Address }

func (b blockingFeed) Address() common.Address { return b.addr }
func (b blockingFeed) Description() string     { return "blocking" }

func (b blockingFeed) LatestPrice(ctx context.Context) (pricefeed.Price, error) {
	<-ctx.Done()
	return pricefeed.Price{}, ctx.Err()
}

func TestFund_FeedTimeout(t *testing.T) {
	c := chain.New()
	owner := common.HexToAddress("0x2000")
	c.SetBalance(owner, chain.Ether(10))
	fm, err := Deploy(c, owner, blockingFeed{addr: common.HexToAddress("0xfeed")})
	require.NoError(t, err)
	fm.SetFeedTimeout(20 * time.Millisecond)

	start := time.Now()
	_, err = c.Submit(context.Background(), chain.Tx{From: owner, To: fm.Address(), Value: sendValue, Method: MethodFund}, fm.Fund)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, fm.Balance().IsZero())

	// the chain lock is free again
	assert.Equal(t, 0, fm.FunderCount())
}

func TestInvariant_BalanceEqualsSumOfRecords(t *testing.T) {
	fx := setup(t)
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 200; step++ {
		from := fx.accounts[rng.Intn(len(fx.accounts))]
		// mix of accepted and rejected amounts around the minimum
		value := new(uint256.Int).Div(chain.Ether(uint64(rng.Intn(3))), uint256.NewInt(uint64(1+rng.Intn(50))))
		switch op := rng.Intn(10); {
		case op < 5:
			_, _ = fx.fund(from, value)
		case op < 7:
			_, _ = fx.chain.Submit(context.Background(), chain.Tx{From: from, To: fx.fm.Address(), Value: value}, nil)
		case op < 9:
			_, _ = fx.call(from, MethodWithdraw, fx.fm.Withdraw)
		default:
			_, _ = fx.call(from, MethodCheaperWithdraw, fx.fm.CheaperWithdraw)
		}

		st := fx.fm.Status()
		require.Equal(t, st.Balance.Dec(), fx.sumOfRecords().Dec(), "step %d", step)
		seen := make(map[common.Address]bool)
		for _, r := range st.Funders {
			require.False(t, seen[r.Account], "duplicate funder at step %d", step)
			require.False(t, r.Amount.IsZero(), "zero record in funder set at step %d", step)
			seen[r.Account] = true
		}
	}
}

func TestRoundTrip_FundThenWithdraw(t *testing.T) {
	fx := setup(t)
	a := fx.accounts[3]
	_, err := fx.fund(a, sendValue)
	require.NoError(t, err)
	_, err = fx.call(fx.deployer, MethodWithdraw, fx.fm.Withdraw)
	require.NoError(t, err)

	assert.True(t, fx.fm.AddressToAmountFunded(a).IsZero())
	assert.Equal(t, 0, fx.fm.FunderCount())
	assert.True(t, fx.fm.Balance().IsZero())
	assert.True(t, fx.fm.Status().Empty())
}

func TestFund_WrongContract(t *testing.T) {
	fx := setup(t)
	_, err := fx.chain.Submit(context.Background(),
		chain.Tx{From: fx.accounts[1], To: fx.accounts[2], Value: sendValue}, fx.fm.Fund)
	assert.ErrorIs(t, err, ErrWrongContract)
}
