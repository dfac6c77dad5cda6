// Package chainclient defines the ChainClient port: blockchain node access
// abstracted away from the core (ERC-20 allowance/approve estimation,
// fee_history, gas_price). The core never speaks JSON-RPC directly; an
// implementation of this interface does.
package chainclient

import (
	"context"
	"math/big"
)

// FeeHistory is the shape ChainClient.FeeHistory returns: one reward
// percentile row per block plus the base fee per block (including the
// next, unconfirmed block appended by eth_feeHistory).
type FeeHistory struct {
	Reward         [][]*big.Int
	BaseFeePerGas  []*big.Int
}

// ChainClient is the minimal on-chain read contract the gas service and
// aggregation engine depend on. Wire-level details (JSON-RPC over
// HTTP/HTTPS, ABI-encoded ERC-20 calls) are the implementation's
// responsibility, not the core's.
type ChainClient interface {
	// Allowance reads the ERC-20 allowance(owner, spender) for tokenAddr.
	Allowance(ctx context.Context, chainID int64, tokenAddr, spender, owner string) (*big.Int, error)

	// EstimateApprove estimates the gas cost of an approve(spender, max)
	// transaction from owner.
	EstimateApprove(ctx context.Context, chainID int64, owner, spender string) (*big.Int, error)

	// GasPrice returns the legacy eth_gasPrice value.
	GasPrice(ctx context.Context, chainID int64) (*big.Int, error)

	// FeeHistory returns blockCount blocks of fee history ending at
	// newestBlock ("latest"), sampled at rewardPercentiles.
	FeeHistory(ctx context.Context, chainID int64, blockCount int, newestBlock string, rewardPercentiles []float64) (*FeeHistory, error)
}
