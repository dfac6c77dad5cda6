// Package engine implements the aggregation engine (C10): concurrent
// fan-out over provider adapters, the allowance/approve-cost-aware
// best-provider selection algorithm, and the thin single-provider and
// quote-dispatch operations layered over the same fan-out primitives.
package engine

import (
	"context"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/chainclient"
	"github.com/dexmeta/aggregator/internal/gas"
	"github.com/dexmeta/aggregator/internal/logger"
	"github.com/dexmeta/aggregator/internal/models"
	"github.com/dexmeta/aggregator/internal/provider"
	"github.com/dexmeta/aggregator/internal/tokeninfo"
)

// Engine ties together the registry, the ports, and the gas service. It
// holds no mutable state of its own beyond the shared cache backend.
type Engine struct {
	registry   *provider.Registry
	crossReg   *provider.CrossChainRegistry
	chains     *provider.ChainCatalog
	chainClient chainclient.ChainClient
	tokenInfo  tokeninfo.TokenInfo
	gasSvc     *gas.Service
	cache      cache.Backend
}

// New builds an aggregation engine. crossReg may be nil if the deployment
// doesn't support cross-chain swaps.
func New(
	registry *provider.Registry,
	crossReg *provider.CrossChainRegistry,
	chains *provider.ChainCatalog,
	chainClient chainclient.ChainClient,
	tokenInfo tokeninfo.TokenInfo,
	gasSvc *gas.Service,
	cacheBackend cache.Backend,
) *Engine {
	return &Engine{
		registry:    registry,
		crossReg:    crossReg,
		chains:      chains,
		chainClient: chainClient,
		tokenInfo:   tokenInfo,
		gasSvc:      gasSvc,
		cache:       cacheBackend,
	}
}

// providerOutcome is a Result<PriceQuote, Error> collected from one
// provider's fan-out task; successes and failures are values here, never
// exceptions, per the engine's re-expression of the source's
// gather(return_exceptions=True) pattern.
type providerOutcome struct {
	name  string
	spender string
	quote models.PriceQuote
	err   error
}

// fanOutContext is everything the T_allow/T_dec/T_bprice/T_gas/T_quotes
// tasks resolve, collected after the wait-for-all barrier.
type fanOutContext struct {
	approveCosts map[string]*big.Int
	isAllowed    map[string]bool
	nativeDecimals uint8
	buyTokenDecimals uint8
	buyTokenNativePrice *big.Rat
	gasPrice *big.Int
	gasReady chan struct{}
	outcomes []providerOutcome
}

// GetMetaPrice resolves the set of market-order providers for the chain,
// fans out the independent probes, and returns the ranked set.
func (e *Engine) GetMetaPrice(ctx context.Context, req models.PriceRequest) ([]models.MetaPrice, error) {
	chain, ok := e.chains.GetByID(req.ChainID)
	if !ok {
		return nil, apperror.ValidationFailed(fmt.Sprintf("unknown chain %d", req.ChainID))
	}

	entries := e.registry.ChainProviders(req.ChainID, provider.MarketOrder)
	if len(entries) == 0 {
		return nil, apperror.NoPricesFound()
	}

	req.SellToken = models.NormalizeAddress(req.SellToken)
	req.BuyToken = models.NormalizeAddress(req.BuyToken)

	fc, err := e.fanOut(ctx, chain, req, entries)
	if err != nil {
		return nil, err
	}

	successes := make(map[string]providerOutcome, len(fc.outcomes))
	for _, o := range fc.outcomes {
		if o.err != nil {
			logger.Warn("provider price fetch failed", logger.Fields{"provider": o.name, "error": o.err.Error()})
			continue
		}
		successes[o.name] = o
	}
	if len(successes) == 0 {
		return nil, apperror.NoPricesFound()
	}

	bestName := chooseBestProvider(entries, successes, fc)

	out := make([]models.MetaPrice, 0, len(successes))
	for _, entry := range entries {
		o, ok := successes[entry.Name]
		if !ok {
			continue
		}
		approveCost := fc.approveCosts[entry.Name]
		out = append(out, models.MetaPrice{
			Provider:      entry.Name,
			PriceResponse: o.quote,
			ApproveCost:   approveCost.String(),
			IsAllowed:     approveCost.Sign() == 0,
			IsBest:        entry.Name == bestName,
		})
	}
	return out, nil
}

// fanOut runs T_allow, T_dec, T_bprice, T_gas and T_quotes concurrently
// and waits for all of them, the idiomatic errgroup replacement for the
// teacher's hand-rolled WaitGroup + buffered error channel.
func (e *Engine) fanOut(ctx context.Context, chain models.ChainInfo, req models.PriceRequest, entries []provider.ChainProviderEntry) (*fanOutContext, error) {
	g, gctx := errgroup.WithContext(ctx)
	fc := &fanOutContext{
		approveCosts: make(map[string]*big.Int, len(entries)),
		isAllowed:    make(map[string]bool, len(entries)),
		gasReady:     make(chan struct{}),
		outcomes:     make([]providerOutcome, len(entries)),
	}

	// T_allow
	g.Go(func() error {
		return e.resolveAllowances(gctx, chain, req, entries, fc)
	})

	// T_dec
	g.Go(func() error {
		nd, bd, err := e.resolveDecimals(gctx, chain, req.BuyToken)
		if err != nil {
			return err
		}
		fc.nativeDecimals = nd
		fc.buyTokenDecimals = bd
		return nil
	})

	// T_bprice
	g.Go(func() error {
		priceToken := e.buyTokenForPriceLookup(chain, req.BuyToken)
		price, err := e.tokenInfo.NativePrice(gctx, req.ChainID, priceToken)
		if err != nil {
			return apperror.PriceUnavailable("", err.Error())
		}
		fc.buyTokenNativePrice = price
		return nil
	})

	// T_gas resolves the caller-supplied or chain-default gas price and
	// closes gasReady so T_quotes can fall it through to every adapter
	// that wasn't given one explicitly, mirroring the source's sequence of
	// resolving gas_price once before dispatching the price tasks.
	g.Go(func() error {
		defer close(fc.gasReady)
		if req.GasPrice != "" {
			v, ok := new(big.Int).SetString(req.GasPrice, 10)
			if !ok {
				return apperror.ValidationFailed("malformed gasPrice")
			}
			fc.gasPrice = v
			return nil
		}
		v, err := e.gasSvc.GetBaseGasPrice(gctx, req.ChainID)
		if err != nil {
			return err
		}
		fc.gasPrice = v
		return nil
	})

	// T_quotes: one task per provider; failures are captured as values on
	// the outcome slot, never returned to the errgroup (a provider failing
	// must not cancel its siblings or poison the aggregate). Each task
	// waits on gasReady so the resolved fallback gas price is in hand
	// before the adapter call, the same ordering the source gets from
	// awaiting gas_price before creating its price tasks.
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			select {
			case <-fc.gasReady:
			case <-gctx.Done():
				return gctx.Err()
			}
			if fc.gasPrice == nil {
				// T_gas failed; its own goroutine already returned the
				// error that will fail g.Wait().
				return nil
			}
			quoteReq := req
			if quoteReq.GasPrice == "" {
				quoteReq.GasPrice = fc.gasPrice.String()
			}
			quote, err := entry.Provider.GetPrice(gctx, quoteReq)
			fc.outcomes[i] = providerOutcome{name: entry.Name, spender: entry.Spender, quote: quote, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fc, nil
}

// resolveAllowances implements T_allow plus the original source's
// get_approve_costs_per_provider batching: a spender seen on more than one
// provider is probed once.
func (e *Engine) resolveAllowances(ctx context.Context, chain models.ChainInfo, req models.PriceRequest, entries []provider.ChainProviderEntry, fc *fanOutContext) error {
	sellAmount, ok := new(big.Int).SetString(req.SellAmount, 10)
	if !ok {
		return apperror.ValidationFailed("malformed sellAmount")
	}

	if req.TakerAddress == "" {
		for _, entry := range entries {
			fc.approveCosts[entry.Name] = big.NewInt(0)
			fc.isAllowed[entry.Name] = true
		}
		return nil
	}
	if models.NormalizeAddress(req.SellToken) == models.NativeTokenSentinel {
		for _, entry := range entries {
			fc.approveCosts[entry.Name] = big.NewInt(0)
			fc.isAllowed[entry.Name] = true
		}
		return nil
	}

	costBySpender := make(map[string]*big.Int)
	for _, entry := range entries {
		cost, ok := costBySpender[entry.Spender]
		if !ok {
			allowance, err := e.chainClient.Allowance(ctx, chain.ChainID, req.SellToken, entry.Spender, req.TakerAddress)
			if err != nil {
				return apperror.EstimationFailed(entry.Name, "allowance probe failed", err)
			}
			if allowance.Cmp(sellAmount) < 0 {
				estimated, err := e.chainClient.EstimateApprove(ctx, chain.ChainID, req.TakerAddress, entry.Spender)
				if err != nil {
					return apperror.EstimationFailed(entry.Name, "approve estimation failed", err)
				}
				cost = estimated
			} else {
				cost = big.NewInt(0)
			}
			costBySpender[entry.Spender] = cost
		}
		fc.approveCosts[entry.Name] = cost
		fc.isAllowed[entry.Name] = cost.Sign() == 0
	}
	return nil
}

// buyTokenForPriceLookup returns the chain's configured native-token
// address (ChainInfo.NativeToken) when the buy token is the native
// sentinel, and the buy token unchanged otherwise. ChainInfo carries no
// separate wrapped-native address, so with a catalog whose native token is
// the sentinel itself the lookup token stays the sentinel.
func (e *Engine) buyTokenForPriceLookup(chain models.ChainInfo, buyToken string) string {
	if models.NormalizeAddress(buyToken) == models.NativeTokenSentinel {
		return chain.NativeToken.Address
	}
	return buyToken
}

func (e *Engine) resolveDecimals(ctx context.Context, chain models.ChainInfo, buyToken string) (uint8, uint8, error) {
	nativeDecimals := chain.NativeDecimals
	normalized := models.NormalizeAddress(buyToken)
	if normalized == models.NativeTokenSentinel || normalized == chain.NativeToken.Address {
		return nativeDecimals, nativeDecimals, nil
	}
	decimals, err := e.tokenInfo.Decimals(ctx, chain.ChainID, buyToken)
	if err != nil {
		return 0, 0, apperror.InvalidTokens("", err.Error())
	}
	return nativeDecimals, decimals, nil
}

// chooseBestProvider implements the profit model of 4.5.2 in arbitrary
// precision and breaks ties by registry (insertion) order — entries is
// already in that order, so the first strictly-greater profit wins.
func chooseBestProvider(entries []provider.ChainProviderEntry, successes map[string]providerOutcome, fc *fanOutContext) string {
	var bestName string
	var bestProfit *big.Rat

	tenPow := func(n uint8) *big.Int {
		return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	}
	nativeScale := tenPow(fc.nativeDecimals)
	buyScale := tenPow(fc.buyTokenDecimals)

	for _, entry := range entries {
		o, ok := successes[entry.Name]
		if !ok {
			continue
		}
		profit := computeProfit(o.quote, fc.approveCosts[entry.Name], nativeScale, buyScale, fc.buyTokenNativePrice)
		if bestProfit == nil || profit.Cmp(bestProfit) > 0 {
			bestProfit = profit
			bestName = entry.Name
		}
	}
	return bestName
}

// computeProfit implements §4.5.2 exactly in big.Rat arithmetic: no
// floating-point rounding at any intermediate step. Both cost terms use the
// provider's own quoted gasPrice, not the chain-wide fallback — a provider
// quoting a higher gas price must bear that cost in its own ranking.
func computeProfit(quote models.PriceQuote, approveCost, nativeScale, buyScale *big.Int, buyTokenNativePrice *big.Rat) *big.Rat {
	gasUsed, _ := new(big.Int).SetString(quote.Gas, 10)
	if gasUsed == nil {
		gasUsed = big.NewInt(0)
	}
	gasPrice, _ := new(big.Int).SetString(quote.GasPrice, 10)
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	if approveCost == nil {
		approveCost = big.NewInt(0)
	}

	txCostWei := new(big.Int).Mul(gasUsed, gasPrice)
	approveCostWei := new(big.Int).Mul(approveCost, gasPrice)
	sumCostWei := new(big.Int).Add(txCostWei, approveCostWei)
	sumCostNative := new(big.Rat).SetFrac(sumCostWei, nativeScale)

	buyAmount, _ := new(big.Int).SetString(quote.BuyAmount, 10)
	if buyAmount == nil {
		buyAmount = big.NewInt(0)
	}
	buyTokenAmount := new(big.Rat).SetFrac(buyAmount, buyScale)
	buyNative := new(big.Rat).Mul(buyTokenAmount, buyTokenNativePrice)

	return new(big.Rat).Sub(buyNative, sumCostNative)
}

// GetProviderPrice restricts GetMetaPrice to a single named provider,
// omitting the ranking step.
func (e *Engine) GetProviderPrice(ctx context.Context, providerName string, req models.PriceRequest) (models.MetaPrice, error) {
	chain, ok := e.chains.GetByID(req.ChainID)
	if !ok {
		return models.MetaPrice{}, apperror.ValidationFailed(fmt.Sprintf("unknown chain %d", req.ChainID))
	}
	entries := e.registry.ChainProviders(req.ChainID, provider.MarketOrder)
	var entry provider.ChainProviderEntry
	found := false
	for _, e2 := range entries {
		if e2.Name == providerName {
			entry, found = e2, true
			break
		}
	}
	if !found {
		return models.MetaPrice{}, apperror.ProviderNotFound(providerName, "provider not supported on this chain")
	}

	fc, err := e.fanOut(ctx, chain, req, []provider.ChainProviderEntry{entry})
	if err != nil {
		return models.MetaPrice{}, err
	}
	outcome := fc.outcomes[0]
	if outcome.err != nil {
		return models.MetaPrice{}, outcome.err
	}
	approveCost := fc.approveCosts[entry.Name]
	return models.MetaPrice{
		Provider:      entry.Name,
		PriceResponse: outcome.quote,
		ApproveCost:   approveCost.String(),
		IsAllowed:     approveCost.Sign() == 0,
	}, nil
}

// GetMetaSwapQuote dispatches to the named adapter's getQuote operation.
// No ranking and no allowance probe; takerAddress is mandatory.
func (e *Engine) GetMetaSwapQuote(ctx context.Context, providerName string, req models.PriceRequest) (models.TxQuote, error) {
	if req.TakerAddress == "" {
		return models.TxQuote{}, apperror.ValidationFailed("takerAddress is required")
	}
	p, ok := e.registry.Get(providerName)
	if !ok {
		return models.TxQuote{}, apperror.ProviderNotFound(providerName, "unknown provider")
	}
	return p.GetQuote(ctx, req)
}
