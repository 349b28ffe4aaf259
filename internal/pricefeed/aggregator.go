package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// aggregatorV3ABI is the read-only subset of Chainlink's AggregatorV3Interface.
const aggregatorV3ABI = `[
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"description","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	]}
]`

var aggregatorABI = mustParseABI(aggregatorV3ABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// roundData mirrors the outputs of latestRoundData().
type roundData struct {
	RoundId         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// ContractCaller is the read-only subset of an Ethereum client the aggregator needs.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Aggregator reads a Chainlink AggregatorV3 contract over JSON-RPC.
type Aggregator struct {
	caller  ContractCaller
	address common.Address
	maxAge  time.Duration

	mu       sync.Mutex
	ready    bool
	decimals uint8
	descr    string
}

// NewAggregator wraps an existing caller. maxAge <= 0 disables the staleness check.
func NewAggregator(caller ContractCaller, address common.Address, maxAge time.Duration) *Aggregator {
	return &Aggregator{caller: caller, address: address, maxAge: maxAge}
}

func (a *Aggregator) Address() common.Address { return a.address }

func (a *Aggregator) Description() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.descr == "" {
		return "aggregator " + a.address.Hex()
	}
	return a.descr
}

// call runs a view method and returns its undecoded output.
func (a *Aggregator) call(ctx context.Context, method string) ([]byte, error) {
	input, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := a.caller.CallContract(ctx, ethereum.CallMsg{To: &a.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, method, err)
	}
	return out, nil
}

func (a *Aggregator) init(ctx context.Context) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return a.decimals, nil
	}

	out, err := a.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	values, err := aggregatorABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals: %v", ErrFeedUnavailable, err)
	}
	a.decimals = *abi.ConvertType(values[0], new(uint8)).(*uint8)

	// description is informational only
	if out, err := a.call(ctx, "description"); err == nil {
		if values, err := aggregatorABI.Unpack("description", out); err == nil {
			a.descr = *abi.ConvertType(values[0], new(string)).(*string)
		}
	}
	a.ready = true
	log.WithFields(log.Fields{"feed": a.address.Hex(), "decimals": a.decimals, "description": a.descr}).
		Info("price feed initialized")
	return a.decimals, nil
}

// LatestPrice calls latestRoundData() and validates freshness.
func (a *Aggregator) LatestPrice(ctx context.Context) (Price, error) {
	decimals, err := a.init(ctx)
	if err != nil {
		return Price{}, err
	}
	out, err := a.call(ctx, "latestRoundData")
	if err != nil {
		return Price{}, err
	}
	var round roundData
	if err := aggregatorABI.UnpackIntoInterface(&round, "latestRoundData", out); err != nil {
		return Price{}, fmt.Errorf("%w: latestRoundData: %v", ErrFeedUnavailable, err)
	}
	if !round.UpdatedAt.IsInt64() {
		return Price{}, fmt.Errorf("%w: updatedAt %s out of range", ErrFeedUnavailable, round.UpdatedAt)
	}

	p := Price{
		RoundID:   round.RoundId,
		Answer:    round.Answer,
		Decimals:  decimals,
		UpdatedAt: time.Unix(round.UpdatedAt.Int64(), 0),
	}

	if p.Answer.Sign() <= 0 {
		return Price{}, fmt.Errorf("%w: answer %s", ErrFeedUnavailable, p.Answer)
	}
	if round.UpdatedAt.Sign() == 0 {
		return Price{}, fmt.Errorf("%w: round %s not complete", ErrFeedUnavailable, p.RoundID)
	}
	if a.maxAge > 0 && time.Since(p.UpdatedAt) > a.maxAge {
		return Price{}, fmt.Errorf("%w: stale round updated at %s", ErrFeedUnavailable, p.UpdatedAt.Format(time.RFC3339))
	}
	return p, nil
}
