package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/models"
)

// kyberNetworkNames maps a chain id to KyberSwap's path-segment network
// name, grounded on CHAIN_ID_TO_NETWORK in
// meta_aggregation_api/providers/kyberswap_v1/kyberswap_provider_v1.py.
var kyberNetworkNames = map[int64]string{
	1:     "ethereum",
	56:    "bsc",
	137:   "polygon",
	10:    "optimism",
	42161: "arbitrum",
	43114: "avalanche",
	250:   "fantom",
}

// KyberSwapAdapter talks to the KyberSwap Aggregator API. Grounded on
// meta_aggregation_api/providers/kyberswap_v1 in the original source:
// GET /{network}/route/encode with tokenIn/tokenOut/amountIn query params,
// returning a nested "swaps" structure ([][]{exchange}) with no proportion
// data, exercising NormalizeSources' zero-proportion drop rule.
type KyberSwapAdapter struct {
	base
	cache cache.Backend
}

func NewKyberSwapAdapter(baseURL, apiKey string, client *http.Client, cacheBackend cache.Backend) *KyberSwapAdapter {
	errorTable := []errorRule{
		{Status: 400, Substr: "insufficient liquidity", Kind: apperror.KindInsufficientLiquidity},
		{Status: 400, Substr: "insufficient", Kind: apperror.KindInsufficientBalance},
		{Status: 404, Kind: apperror.KindPriceUnavailable},
	}
	return &KyberSwapAdapter{
		base:  newBase("kyberswap", baseURL, apiKey, client, DefaultTimeout, errorTable),
		cache: cacheBackend,
	}
}

type kyberSwapLeg struct {
	Exchange string `json:"exchange"`
}

type kyberRouteResponse struct {
	InputAmount     string           `json:"inputAmount"`
	OutputAmount    string           `json:"outputAmount"`
	TotalGas        json.Number      `json:"totalGas"`
	GasPriceGwei    string           `json:"gasPriceGwei"`
	RouterAddress   string           `json:"routerAddress"`
	EncodedSwapData string           `json:"encodedSwapData"`
	Swaps           [][]kyberSwapLeg `json:"swaps"`
}

func (k *KyberSwapAdapter) buildQuery(req models.PriceRequest) (url.Values, error) {
	network, ok := kyberNetworkNames[req.ChainID]
	if !ok {
		return nil, apperror.InvalidTokens(k.name, fmt.Sprintf("unsupported chain id %d", req.ChainID))
	}
	q := url.Values{}
	q.Set("tokenIn", req.SellToken)
	q.Set("tokenOut", req.BuyToken)
	q.Set("amountIn", req.SellAmount)
	if req.TakerAddress != "" {
		q.Set("to", req.TakerAddress)
	} else {
		q.Set("to", models.NativeTokenSentinel)
	}
	if req.SlippagePercentage != nil {
		q.Set("slippageTolerance", strconv.Itoa(int(*req.SlippagePercentage*10000)))
	}
	if req.BuyTokenPercentageFee != nil && req.FeeRecipient != "" {
		q.Set("chargeFeeBy", "currency_out")
		q.Set("feeReceiver", req.FeeRecipient)
		q.Set("isInBps", "1")
		q.Set("feeAmount", strconv.Itoa(int(*req.BuyTokenPercentageFee*10000)))
	}
	return q, nil
}

func (k *KyberSwapAdapter) routeURL(chainID int64, q url.Values) string {
	return fmt.Sprintf("%s/%s/route/encode?%s", k.baseURL, kyberNetworkNames[chainID], q.Encode())
}

func kyberSourcesFromSwaps(swaps [][]kyberSwapLeg) []rawSource {
	var out []rawSource
	for _, hop := range swaps {
		for _, leg := range hop {
			// KyberSwap's response carries no per-leg proportion; the
			// original service hard-codes 0.0, which NormalizeSources then
			// drops.
			out = append(out, rawSource{Name: leg.Exchange, Proportion: 0})
		}
	}
	return out
}

func (k *KyberSwapAdapter) toPriceQuote(resp kyberRouteResponse, sellToken string) (models.PriceQuote, error) {
	price, err := recomputedPrice(resp.OutputAmount, resp.InputAmount)
	if err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(k.name, "failed to recompute price", err)
	}
	value := "0"
	if models.NormalizeAddress(sellToken) == models.NativeTokenSentinel {
		value = resp.InputAmount
	}
	return models.PriceQuote{
		Provider:   k.name,
		Sources:    NormalizeSources(kyberSourcesFromSwaps(resp.Swaps)),
		SellAmount: resp.InputAmount,
		BuyAmount:  resp.OutputAmount,
		Gas:        resp.TotalGas.String(),
		GasPrice:   gweiToWei(resp.GasPriceGwei),
		Value:      value,
		Price:      price,
	}, nil
}

// GetPrice fetches and caches a price quote for 30 seconds.
func (k *KyberSwapAdapter) GetPrice(ctx context.Context, req models.PriceRequest) (models.PriceQuote, error) {
	key := cache.BuildKey("providers.kyberswap.GetPrice", req.ChainID, req.BuyToken, req.SellToken, req.SellAmount, req.TakerAddress)
	if k.cache != nil {
		if raw, found, _ := k.cache.Get(ctx, key); found {
			var q models.PriceQuote
			if json.Unmarshal(raw, &q) == nil {
				return q, nil
			}
		}
	}

	q, err := k.buildQuery(req)
	if err != nil {
		return models.PriceQuote{}, err
	}
	body, err := k.doGet(ctx, k.routeURL(req.ChainID, q), nil)
	if err != nil {
		return models.PriceQuote{}, err
	}
	var resp kyberRouteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(k.name, "malformed kyberswap response", err)
	}
	quote, err := k.toPriceQuote(resp, req.SellToken)
	if err != nil {
		return models.PriceQuote{}, err
	}

	if k.cache != nil {
		if raw, err := json.Marshal(quote); err == nil {
			_ = k.cache.Set(ctx, key, raw, cache.TTLProviderPrice)
		}
	}
	return quote, nil
}

// GetQuote requires a taker address; KyberSwap's route/encode endpoint
// returns ready-to-broadcast calldata directly (no separate quote call).
func (k *KyberSwapAdapter) GetQuote(ctx context.Context, req models.PriceRequest) (models.TxQuote, error) {
	if req.TakerAddress == "" {
		return models.TxQuote{}, apperror.ValidationFailed("takerAddress is required for getQuote")
	}
	q, err := k.buildQuery(req)
	if err != nil {
		return models.TxQuote{}, err
	}
	body, err := k.doGet(ctx, k.routeURL(req.ChainID, q), nil)
	if err != nil {
		return models.TxQuote{}, err
	}
	var resp kyberRouteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.TxQuote{}, apperror.ParseResponse(k.name, "malformed kyberswap response", err)
	}
	priceQuote, err := k.toPriceQuote(resp, req.SellToken)
	if err != nil {
		return models.TxQuote{}, err
	}
	if !models.ValidCalldata(resp.EncodedSwapData) {
		return models.TxQuote{}, apperror.ParseResponse(k.name, "malformed calldata", nil)
	}
	return models.TxQuote{
		Sources:    priceQuote.Sources,
		SellAmount: priceQuote.SellAmount,
		BuyAmount:  priceQuote.BuyAmount,
		Gas:        priceQuote.Gas,
		GasPrice:   priceQuote.GasPrice,
		Value:      priceQuote.Value,
		Price:      priceQuote.Price,
		To:         resp.RouterAddress,
		Data:       resp.EncodedSwapData,
	}, nil
}
