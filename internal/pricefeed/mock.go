package pricefeed

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Values used by the local development deployment.
const (
	MockDecimals      = 8
	MockInitialAnswer = 200000000000 // 2000.00000000 USD
)

// MockAggregator is a deterministic feed for development networks and tests.
type MockAggregator struct {
	mu          sync.RWMutex
	address     common.Address
	decimals    uint8
	answer      *big.Int
	round       int64
	updatedAt   time.Time
	unavailable bool
}

// NewMockAggregator creates a mock feed reporting initialAnswer with the given decimals.
func NewMockAggregator(address common.Address, decimals uint8, initialAnswer int64) *MockAggregator {
	m := &MockAggregator{address: address, decimals: decimals}
	m.UpdateAnswer(big.NewInt(initialAnswer))
	return m
}

func (m *MockAggregator) Address() common.Address { return m.address }

func (m *MockAggregator) Description() string { return "mock ETH / USD" }

// UpdateAnswer starts a new round with the given answer.
func (m *MockAggregator) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = new(big.Int).Set(answer)
	m.round++
	m.updatedAt = time.Now()
}

// SetUnavailable makes LatestPrice fail until reset.
func (m *MockAggregator) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

func (m *MockAggregator) LatestPrice(_ context.Context) (Price, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return Price{}, ErrFeedUnavailable
	}
	return Price{
		RoundID:   big.NewInt(m.round),
		Answer:    new(big.Int).Set(m.answer),
		Decimals:  m.decimals,
		UpdatedAt: m.updatedAt,
	}, nil
}
