package deploy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/chain"
	"FundMe/internal/config"
	"FundMe/internal/ledger"
	"FundMe/internal/pricefeed"
)

// Backend is the JSON-RPC surface used on public networks.
type Backend interface {
	pricefeed.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// DialFunc opens a Backend for an RPC URL.
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

// DialEthclient is the default DialFunc.
func DialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Deployment is a ready-to-use ledger together with its chain and price feed.
type Deployment struct {
	Chain     *chain.Chain
	Ledger    *ledger.FundMe
	Feed      pricefeed.Feed
	Mock      *pricefeed.MockAggregator // nil on public networks
	Persister *Persister
	backend   Backend
}

// Close releases the RPC connection, if any.
func (d *Deployment) Close() {
	if d.backend != nil {
		d.backend.Close()
	}
}

// Run seeds the genesis accounts, deploys the price feed (a mock on development
// chains) and the ledger, then restores the ledger from the state file if one exists.
func Run(ctx context.Context, cfg *config.Config, dial DialFunc) (*Deployment, error) {
	gasPrice, err := cfg.GasPrice()
	if err != nil {
		return nil, err
	}
	c := chain.New(chain.WithGasPrice(gasPrice))
	for addr, eth := range cfg.Genesis() {
		c.SetBalance(addr, chain.Ether(eth))
	}

	d := &Deployment{Chain: c}
	deployer := cfg.DeployerAddress()

	if config.IsDevChain(cfg.Network) {
		log.Infof("local network %s detected, deploying mocks", cfg.Network)
		if _, err := c.Deploy(deployer, func(addr common.Address) (chain.Journal, error) {
			d.Mock = pricefeed.NewMockAggregator(addr, pricefeed.MockDecimals, pricefeed.MockInitialAnswer)
			return nil, nil
		}); err != nil {
			return nil, fmt.Errorf("deploy mock aggregator: %w", err)
		}
		d.Feed = d.Mock
	} else {
		feed, err := d.connect(ctx, cfg, dial)
		if err != nil {
			return nil, err
		}
		d.Feed = feed
	}

	fm, err := ledger.Deploy(c, deployer, d.Feed)
	if err != nil {
		d.Close()
		return nil, err
	}
	fm.SetFeedTimeout(cfg.Chain.FeedTimeout)
	d.Ledger = fm

	d.Persister, err = NewPersister(cfg.Ledger.StateFile, fm)
	if err != nil {
		d.Close()
		return nil, err
	}
	c.Subscribe(d.Persister.OnReceipt)

	log.Info("------------------------------------------")
	return d, nil
}

func (d *Deployment) connect(ctx context.Context, cfg *config.Config, dial DialFunc) (pricefeed.Feed, error) {
	network, ok := config.LookupNetwork(cfg.Network)
	if !ok {
		return nil, fmt.Errorf("network %q is not supported", cfg.Network)
	}
	if dial == nil {
		dial = DialEthclient
	}
	backend, err := dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	id, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != network.ChainID {
		backend.Close()
		return nil, fmt.Errorf("rpc serves chain %s, %s is %d", id, network.Name, network.ChainID)
	}
	d.backend = backend
	log.WithFields(log.Fields{
		"network":  network.Name,
		"chain_id": network.ChainID,
		"feed":     network.EthUSDPriceFeed.Hex(),
	}).Info("using live price feed")
	return pricefeed.NewAggregator(backend, network.EthUSDPriceFeed, cfg.Chain.FeedMaxAge), nil
}
