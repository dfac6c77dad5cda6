// Package tokeninfo defines the TokenInfo port: decimals and
// native-denominated token price lookup, abstracted away from the core.
package tokeninfo

import (
	"context"
	"math/big"

	"github.com/dexmeta/aggregator/internal/models"
)

// TokenInfo is the minimal token-metadata contract the engine depends on.
type TokenInfo interface {
	// Decimals returns the ERC-20 decimals for tokenAddress on chainID.
	Decimals(ctx context.Context, chainID int64, tokenAddress string) (uint8, error)

	// NativePrice returns the price of tokenAddress denominated in the
	// chain's native token, as an exact rational (never floating point).
	NativePrice(ctx context.Context, chainID int64, tokenAddress string) (*big.Rat, error)

	// ListChains returns the static chain catalog this source backs.
	ListChains(ctx context.Context) ([]models.ChainInfo, error)
}
