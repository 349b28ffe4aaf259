package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FundMe/internal/chain"
	"FundMe/internal/pricefeed"
)

func TestLoadState_MissingFile(t *testing.T) {
	st, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.True(t, st.Empty())
}

func TestLoadState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadState(path)
	assert.Error(t, err)
}

func TestState_SaveLoadRestore(t *testing.T) {
	fx := setup(t)
	for i := 1; i < 4; i++ {
		_, err := fx.fund(fx.accounts[i], sendValue)
		require.NoError(t, err)
	}
	_, err := fx.fund(fx.accounts[1], sendValue)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data", "state.json")
	require.NoError(t, SaveState(path, fx.fm.Capture()))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.False(t, loaded.Empty())
	assert.False(t, loaded.UpdatedAt.IsZero())

	// a fresh process replays the same deployment and then restores
	fresh := setup(t)
	require.Equal(t, fx.fm.Address(), fresh.fm.Address())
	require.NoError(t, fresh.fm.Restore(loaded))

	assert.Equal(t, 3, fresh.fm.FunderCount())
	assert.Equal(t, chain.Ether(2).Dec(), fresh.fm.AddressToAmountFunded(fx.accounts[1]).Dec())
	assert.Equal(t, chain.Ether(4).Dec(), fresh.fm.Balance().Dec())
	assert.Equal(t, fx.chain.BalanceOf(fx.accounts[2]).Dec(), fresh.chain.BalanceOf(fx.accounts[2]).Dec())
	assert.Equal(t, fx.chain.Nonce(fx.accounts[1]), fresh.chain.Nonce(fx.accounts[1]))

	_, err = fresh.call(fresh.deployer, MethodCheaperWithdraw, fresh.fm.CheaperWithdraw)
	require.NoError(t, err)
	assert.True(t, fresh.fm.Balance().IsZero())
}

func TestState_RestoreRejectsOtherContract(t *testing.T) {
	fx := setup(t)
	st := fx.fm.Capture()
	st.Contract = common.HexToAddress("0xdead")
	assert.ErrorIs(t, fx.fm.Restore(st), ErrStateMismatch)

	st = fx.fm.Capture()
	other := pricefeed.NewMockAggregator(common.HexToAddress("0xbeef"), 8, 1)
	st.PriceFeed = other.Address()
	assert.ErrorIs(t, fx.fm.Restore(st), ErrStateMismatch)
}

func TestState_RestoreRejectsInconsistentRecords(t *testing.T) {
	fx := setup(t)
	for i := 1; i < 3; i++ {
		_, err := fx.fund(fx.accounts[i], sendValue)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		mutate func(st *State)
	}{
		{"balance differs from records", func(st *State) {
			st.Balances[st.Contract] = chain.Ether(5)
		}},
		{"missing contract balance", func(st *State) {
			delete(st.Balances, st.Contract)
		}},
		{"duplicate funder", func(st *State) {
			st.Funders = append(st.Funders, st.Funders[0])
		}},
		{"funder without record", func(st *State) {
			st.Amounts[st.Funders[0]] = new(uint256.Int)
		}},
		{"record outside funder list", func(st *State) {
			st.Funders = st.Funders[:1]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh := setup(t)
			st := fx.fm.Capture()
			tt.mutate(st)
			assert.ErrorIs(t, fresh.fm.Restore(st), ErrStateMismatch)
			// nothing was applied
			assert.Equal(t, 0, fresh.fm.FunderCount())
			assert.True(t, fresh.fm.Balance().IsZero())
		})
	}

	fresh := setup(t)
	require.NoError(t, fresh.fm.Restore(fx.fm.Capture()))
	assert.Equal(t, 2, fresh.fm.FunderCount())
}
