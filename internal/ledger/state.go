package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"FundMe/internal/chain"
)

// State is the durable layout of the contract plus the chain accounts it lives in.
type State struct {
	Contract  common.Address                  `json:"contract"`
	Owner     common.Address                  `json:"owner"`
	PriceFeed common.Address                  `json:"price_feed"`
	Funders   []common.Address                `json:"funders"`
	Amounts   map[common.Address]*uint256.Int `json:"amounts"`
	Balances  map[common.Address]*uint256.Int `json:"balances"`
	Nonces    map[common.Address]uint64       `json:"nonces"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

// Empty reports whether s was never saved.
func (s *State) Empty() bool { return s.Contract == (common.Address{}) }

// Capture reads the committed state of f and its chain.
func (f *FundMe) Capture() *State {
	var st *State
	f.chain.View(func(s chain.State) {
		balances, nonces := s.Accounts()
		st = &State{
			Contract:  f.address,
			Owner:     f.owner,
			PriceFeed: f.priceFeed,
			Funders:   append([]common.Address(nil), f.funders...),
			Amounts:   make(map[common.Address]*uint256.Int, len(f.amounts)),
			Balances:  balances,
			Nonces:    nonces,
		}
		for a, v := range f.amounts {
			st.Amounts[a] = v.Clone()
		}
	})
	return st
}

// Restore loads a saved state into a freshly deployed f. It must run before
// any transaction is submitted.
func (f *FundMe) Restore(s *State) error {
	if s.Contract != f.address {
		return fmt.Errorf("%w: saved %s, deployed %s", ErrStateMismatch, s.Contract.Hex(), f.address.Hex())
	}
	if s.PriceFeed != f.priceFeed {
		return fmt.Errorf("%w: saved feed %s, configured %s", ErrStateMismatch, s.PriceFeed.Hex(), f.priceFeed.Hex())
	}
	if err := s.validate(); err != nil {
		return err
	}
	f.chain.Restore(s.Balances, s.Nonces)
	f.owner = s.Owner
	f.funders = append([]common.Address(nil), s.Funders...)
	f.amounts = make(map[common.Address]*uint256.Int, len(s.Amounts))
	for a, v := range s.Amounts {
		f.amounts[a] = v.Clone()
	}
	return nil
}

// validate checks that the funder list and records are consistent with each
// other and with the contract balance.
func (s *State) validate() error {
	seen := make(map[common.Address]bool, len(s.Funders))
	total := new(uint256.Int)
	for _, a := range s.Funders {
		if seen[a] {
			return fmt.Errorf("%w: funder %s listed twice", ErrStateMismatch, a.Hex())
		}
		seen[a] = true
		amount, ok := s.Amounts[a]
		if !ok || amount == nil || amount.IsZero() {
			return fmt.Errorf("%w: funder %s has no record", ErrStateMismatch, a.Hex())
		}
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return fmt.Errorf("%w: funder records overflow", ErrStateMismatch)
		}
	}
	for a := range s.Amounts {
		if !seen[a] {
			return fmt.Errorf("%w: record for %s is not in the funder list", ErrStateMismatch, a.Hex())
		}
	}
	balance := new(uint256.Int)
	if b, ok := s.Balances[s.Contract]; ok && b != nil {
		balance = b
	}
	if !balance.Eq(total) {
		return fmt.Errorf("%w: balance %s, records sum to %s", ErrStateMismatch, balance.Dec(), total.Dec())
	}
	return nil
}

// LoadState reads the state from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// SaveState writes the state to a JSON file, replacing it atomically.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
