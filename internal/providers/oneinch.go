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

// OneInchAdapter talks to the 1inch aggregation-protocol API. Grounded on
// meta_aggregation_api/providers/one_inch_v5 in the original source: GET
// /v5.0/{chainId}/quote and /swap with fromTokenAddress/toTokenAddress/
// amount, returning nested "protocols" hops instead of a flat sources
// list — exercising the hop-flattening rule in NormalizeSources.
type OneInchAdapter struct {
	base
	cache cache.Backend
}

func NewOneInchAdapter(baseURL, apiKey string, client *http.Client, cacheBackend cache.Backend) *OneInchAdapter {
	errorTable := []errorRule{
		{Status: 400, Substr: "insufficient liquidity", Kind: apperror.KindInsufficientLiquidity},
		{Status: 400, Substr: "cannot estimate", Kind: apperror.KindEstimationFailed},
		{Status: 400, Substr: "not enough allowance", Kind: apperror.KindInsufficientAllowance},
		{Status: 400, Substr: "insufficient balance", Kind: apperror.KindInsufficientBalance},
		{Status: 429, Kind: apperror.KindProviderUnspecified},
	}
	return &OneInchAdapter{
		base:  newBase("1inch", baseURL, apiKey, client, DefaultTimeout, errorTable),
		cache: cacheBackend,
	}
}

// protocolHop is a single leg of 1inch's nested "protocols" routing tree:
// [][]{{name, part, ...}} per path segment.
type protocolHop struct {
	Name string  `json:"name"`
	Part float64 `json:"part"`
}

type oneInchQuoteResponse struct {
	ToTokenAmount   string          `json:"toTokenAmount"`
	FromTokenAmount string          `json:"fromTokenAmount"`
	EstimatedGas    json.Number     `json:"estimatedGas"`
	Protocols       [][]protocolHop `json:"protocols"`
}

type oneInchSwapResponse struct {
	oneInchQuoteResponse
	Tx struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasPrice string `json:"gasPrice"`
		Gas      int64  `json:"gas"`
	} `json:"tx"`
}

func (o *OneInchAdapter) buildQuery(req models.PriceRequest) url.Values {
	q := url.Values{}
	q.Set("fromTokenAddress", req.SellToken)
	q.Set("toTokenAddress", req.BuyToken)
	q.Set("amount", req.SellAmount)
	if req.SlippagePercentage != nil {
		q.Set("slippage", strconv.FormatFloat(*req.SlippagePercentage*100, 'f', -1, 64))
	}
	if req.TakerAddress != "" {
		q.Set("fromAddress", req.TakerAddress)
	}
	if req.FeeRecipient != "" {
		q.Set("referrerAddress", req.FeeRecipient)
	}
	return q
}

func protocolsToRawSources(protocols [][]protocolHop) []rawSource {
	var out []rawSource
	for _, path := range protocols {
		var hops []rawSource
		for _, hop := range path {
			hops = append(hops, rawSource{Name: hop.Name, Proportion: hop.Part})
		}
		out = append(out, rawSource{Proportion: 100, Hops: hops})
	}
	return out
}

func (o *OneInchAdapter) GetPrice(ctx context.Context, req models.PriceRequest) (models.PriceQuote, error) {
	key := cache.BuildKey("providers.1inch.GetPrice", req.ChainID, req.BuyToken, req.SellToken, req.SellAmount, req.TakerAddress)
	if o.cache != nil {
		if raw, found, _ := o.cache.Get(ctx, key); found {
			var q models.PriceQuote
			if json.Unmarshal(raw, &q) == nil {
				return q, nil
			}
		}
	}

	u := fmt.Sprintf("%s/v5.0/%d/quote?%s", o.baseURL, req.ChainID, o.buildQuery(req).Encode())
	body, err := o.doGet(ctx, u, nil)
	if err != nil {
		return models.PriceQuote{}, err
	}
	var resp oneInchQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(o.name, "malformed 1inch response", err)
	}

	price, err := recomputedPrice(resp.ToTokenAmount, req.SellAmount)
	if err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(o.name, "failed to recompute price", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == "" {
		gasPrice = "0"
	}

	value := "0"
	if models.NormalizeAddress(req.SellToken) == models.NativeTokenSentinel {
		value = req.SellAmount
	}

	quote := models.PriceQuote{
		Provider:   o.name,
		Sources:    NormalizeSources(protocolsToRawSources(resp.Protocols)),
		SellAmount: req.SellAmount,
		BuyAmount:  resp.ToTokenAmount,
		Gas:        resp.EstimatedGas.String(),
		GasPrice:   gasPrice,
		Value:      value,
		Price:      price,
	}

	if o.cache != nil {
		if raw, err := json.Marshal(quote); err == nil {
			_ = o.cache.Set(ctx, key, raw, cache.TTLProviderPrice)
		}
	}
	return quote, nil
}

func (o *OneInchAdapter) GetQuote(ctx context.Context, req models.PriceRequest) (models.TxQuote, error) {
	if req.TakerAddress == "" {
		return models.TxQuote{}, apperror.ValidationFailed("takerAddress is required for getQuote")
	}
	u := fmt.Sprintf("%s/v5.0/%d/swap?%s", o.baseURL, req.ChainID, o.buildQuery(req).Encode())
	body, err := o.doGet(ctx, u, nil)
	if err != nil {
		return models.TxQuote{}, err
	}
	var resp oneInchSwapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.TxQuote{}, apperror.ParseResponse(o.name, "malformed 1inch response", err)
	}

	price, err := recomputedPrice(resp.ToTokenAmount, req.SellAmount)
	if err != nil {
		return models.TxQuote{}, apperror.ParseResponse(o.name, "failed to recompute price", err)
	}
	if !models.ValidCalldata(resp.Tx.Data) {
		return models.TxQuote{}, apperror.ParseResponse(o.name, "malformed calldata", nil)
	}

	return models.TxQuote{
		Sources:    NormalizeSources(protocolsToRawSources(resp.Protocols)),
		SellAmount: req.SellAmount,
		BuyAmount:  resp.ToTokenAmount,
		Gas:        fmt.Sprintf("%d", resp.Tx.Gas),
		GasPrice:   resp.Tx.GasPrice,
		Value:      resp.Tx.Value,
		Price:      price,
		To:         resp.Tx.To,
		Data:       resp.Tx.Data,
	}, nil
}
