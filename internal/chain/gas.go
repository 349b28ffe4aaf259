package chain

import "github.com/holiman/uint256"

// Gas schedule, loosely following the EVM.
const (
	GasTx           uint64 = 21000
	GasStorageRead  uint64 = 2100
	GasStorageSet   uint64 = 20000 // zero -> non-zero
	GasStorageReset uint64 = 5000  // non-zero -> any
	GasCall         uint64 = 2600
	GasCallValue    uint64 = 9000
	GasExternalRead uint64 = 2600

	DefaultGasLimit uint64 = 30_000_000
	DefaultMaxDepth        = 64
)

// DefaultGasPrice is 1 gwei.
var DefaultGasPrice = uint256.NewInt(1_000_000_000)

var weiPerEther = uint256.NewInt(1_000_000_000_000_000_000)

// Ether returns n whole native units in wei.
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), weiPerEther)
}
