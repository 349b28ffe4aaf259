package config

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig describes a public network the ledger can read prices from.
type NetworkConfig struct {
	Name               string
	ChainID            uint64
	EthUSDPriceFeed    common.Address
	BlockConfirmations int
}

var networks = map[string]NetworkConfig{
	"sepolia": {
		Name:               "sepolia",
		ChainID:            11155111,
		EthUSDPriceFeed:    common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306"),
		BlockConfirmations: 6,
	},
}

// devChains run against a locally deployed mock feed.
var devChains = []string{"hardhat", "localhost"}

// DevAccounts are the first well-known hardhat accounts, seeded on development chains.
var DevAccounts = []common.Address{
	common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
	common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
	common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"),
	common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"),
	common.HexToAddress("0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc"),
}

// IsDevChain reports whether name is a local development network.
func IsDevChain(name string) bool {
	name = strings.ToLower(name)
	for _, c := range devChains {
		if c == name {
			return true
		}
	}
	return false
}

// LookupNetwork returns the public network registered under name.
func LookupNetwork(name string) (NetworkConfig, bool) {
	n, ok := networks[strings.ToLower(name)]
	return n, ok
}

// LookupChainID returns the public network with the given chain id.
func LookupChainID(id uint64) (NetworkConfig, bool) {
	for _, n := range networks {
		if n.ChainID == id {
			return n, true
		}
	}
	return NetworkConfig{}, false
}
