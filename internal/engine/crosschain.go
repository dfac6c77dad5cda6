package engine

import (
	"math/big"

	"context"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/models"
	"github.com/dexmeta/aggregator/internal/provider"
)

// GetCrossChainMetaSwapQuote dispatches to the named cross-chain adapter's
// getQuote operation. No ranking and no allowance probe.
func (e *Engine) GetCrossChainMetaSwapQuote(ctx context.Context, providerName string, req models.CrossChainPriceRequest) (models.TxQuote, error) {
	if e.crossReg == nil {
		return models.TxQuote{}, apperror.ProviderNotFound(providerName, "no cross-chain providers configured")
	}
	p, ok := e.crossReg.Get(providerName)
	if !ok {
		return models.TxQuote{}, apperror.ProviderNotFound(providerName, "unknown cross-chain provider")
	}
	return p.CrossChainGetQuote(ctx, req)
}

// GetCrossChainProviderPrice gets a cross-chain price from a single named
// provider and then runs the allowance/approve probe exactly as the
// single-chain path does, using chainIdFrom. If the adapter's returned
// price has no AllowanceTarget, it unconditionally falls back to the
// descriptor's spender address for the source chain (§9 open question).
func (e *Engine) GetCrossChainProviderPrice(ctx context.Context, providerName string, req models.CrossChainPriceRequest) (models.MetaPrice, error) {
	if e.crossReg == nil {
		return models.MetaPrice{}, apperror.ProviderNotFound(providerName, "no cross-chain providers configured")
	}
	p, ok := e.crossReg.Get(providerName)
	if !ok {
		return models.MetaPrice{}, apperror.ProviderNotFound(providerName, "unknown cross-chain provider")
	}

	chain, ok := e.chains.GetByID(req.ChainID)
	if !ok {
		return models.MetaPrice{}, apperror.ValidationFailed("unknown source chain")
	}

	if p.RequiresGasPrice() && req.GasPrice == "" {
		gp, err := e.gasSvc.GetBaseGasPrice(ctx, req.ChainID)
		if err != nil {
			return models.MetaPrice{}, err
		}
		req.GasPrice = gp.String()
	}

	quote, err := p.CrossChainGetPrice(ctx, req)
	if err != nil {
		return models.MetaPrice{}, err
	}

	spender := quote.AllowanceTarget
	if spender == "" {
		spender, _ = e.registry.SpenderFor(providerName, req.ChainID, provider.MarketOrder)
	}
	if spender == "" {
		return models.MetaPrice{}, apperror.SpenderAddressNotFound(providerName, "no spender address for cross-chain provider on source chain")
	}

	approveCost := big.NewInt(0)
	if req.TakerAddress != "" && models.NormalizeAddress(req.SellToken) != models.NativeTokenSentinel {
		sellAmount, ok := new(big.Int).SetString(req.SellAmount, 10)
		if !ok {
			return models.MetaPrice{}, apperror.ValidationFailed("malformed sellAmount")
		}
		allowance, err := e.chainClient.Allowance(ctx, chain.ChainID, req.SellToken, spender, req.TakerAddress)
		if err != nil {
			return models.MetaPrice{}, apperror.EstimationFailed(providerName, "allowance probe failed", err)
		}
		if allowance.Cmp(sellAmount) < 0 {
			estimated, err := e.chainClient.EstimateApprove(ctx, chain.ChainID, req.TakerAddress, spender)
			if err != nil {
				return models.MetaPrice{}, apperror.EstimationFailed(providerName, "approve estimation failed", err)
			}
			approveCost = estimated
		}
	}

	return models.MetaPrice{
		Provider:      providerName,
		PriceResponse: quote,
		ApproveCost:   approveCost.String(),
		IsAllowed:     approveCost.Sign() == 0,
	}, nil
}
