package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/models"
)

// ZeroXAdapter talks to the 0x swap-quote API. Grounded on
// meta_aggregation_api/providers/zerox_v1 in the original source: GET
// /swap/v1/price and /swap/v1/quote with buyToken/sellToken/sellAmount
// query params, and a "sources" array of {name, proportion} in its
// response.
type ZeroXAdapter struct {
	base
	wrappedNative map[int64]string
	cache         cache.Backend
}

// NewZeroXAdapter builds the 0x adapter. wrappedNative maps chain id to
// the wrapped-native token address 0x expects in place of the sentinel.
func NewZeroXAdapter(baseURL, apiKey string, client *http.Client, wrappedNative map[int64]string, cacheBackend cache.Backend) *ZeroXAdapter {
	errorTable := []errorRule{
		{Status: 400, Substr: "INSUFFICIENT_ASSET_LIQUIDITY", Kind: apperror.KindInsufficientLiquidity},
		{Status: 400, Substr: "insufficient funds", Kind: apperror.KindInsufficientBalance},
		{Status: 400, Substr: "allowance", Kind: apperror.KindInsufficientAllowance},
		{Status: 400, Kind: apperror.KindEstimationFailed},
		{Status: 404, Kind: apperror.KindPriceUnavailable},
	}
	return &ZeroXAdapter{
		base:          newBase("0x", baseURL, apiKey, client, DefaultTimeout, errorTable),
		wrappedNative: wrappedNative,
		cache:         cacheBackend,
	}
}

type zeroXResponse struct {
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
	Gas        string `json:"gas"`
	GasPrice   string `json:"gasPrice"`
	Value      string `json:"value"`
	To         string `json:"to"`
	Data       string `json:"data"`
	AllowanceTarget string `json:"allowanceTarget"`
	Sources    []struct {
		Name       string `json:"name"`
		Proportion string `json:"proportion"`
	} `json:"sources"`
}

func (z *ZeroXAdapter) resolveToken(chainID int64, token string) string {
	if models.NormalizeAddress(token) != models.NativeTokenSentinel {
		return token
	}
	if wrapped, ok := z.wrappedNative[chainID]; ok {
		return wrapped
	}
	return token
}

func (z *ZeroXAdapter) buildQuery(req models.PriceRequest) url.Values {
	q := url.Values{}
	q.Set("buyToken", z.resolveToken(req.ChainID, req.BuyToken))
	q.Set("sellToken", z.resolveToken(req.ChainID, req.SellToken))
	q.Set("sellAmount", req.SellAmount)
	if req.GasPrice != "" {
		q.Set("gasPrice", req.GasPrice)
	}
	if req.SlippagePercentage != nil {
		q.Set("slippagePercentage", fmt.Sprintf("%v", *req.SlippagePercentage))
	}
	if req.TakerAddress != "" {
		q.Set("takerAddress", req.TakerAddress)
	}
	if req.FeeRecipient != "" {
		q.Set("feeRecipient", req.FeeRecipient)
	}
	if req.BuyTokenPercentageFee != nil {
		q.Set("buyTokenPercentageFee", fmt.Sprintf("%v", *req.BuyTokenPercentageFee))
	}
	return q
}

func (z *ZeroXAdapter) parse(body []byte) (zeroXResponse, error) {
	var out zeroXResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return out, apperror.ParseResponse(z.name, "malformed 0x response", err)
	}
	return out, nil
}

func (z *ZeroXAdapter) toPriceQuote(chainID int64, sellToken string, resp zeroXResponse) (models.PriceQuote, error) {
	price, err := recomputedPrice(resp.BuyAmount, resp.SellAmount)
	if err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(z.name, "failed to recompute price", err)
	}

	raw := make([]rawSource, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		prop, _ := new(big.Float).SetString(s.Proportion)
		p, _ := prop.Float64()
		raw = append(raw, rawSource{Name: s.Name, Proportion: p * 100})
	}

	value := "0"
	if models.NormalizeAddress(sellToken) == models.NativeTokenSentinel {
		value = resp.SellAmount
	}

	return models.PriceQuote{
		Provider:        z.name,
		Sources:         NormalizeSources(raw),
		SellAmount:      resp.SellAmount,
		BuyAmount:       resp.BuyAmount,
		Gas:             resp.Gas,
		GasPrice:        resp.GasPrice,
		Value:           value,
		Price:           price,
		AllowanceTarget: resp.AllowanceTarget,
	}, nil
}

// GetPrice fetches and caches a price quote for 30 seconds, keyed on the
// normalized request.
func (z *ZeroXAdapter) GetPrice(ctx context.Context, req models.PriceRequest) (models.PriceQuote, error) {
	key := cache.BuildKey("providers.0x.GetPrice", req.ChainID, req.BuyToken, req.SellToken, req.SellAmount, req.TakerAddress)
	if z.cache != nil {
		if raw, found, _ := z.cache.Get(ctx, key); found {
			var q models.PriceQuote
			if json.Unmarshal(raw, &q) == nil {
				return q, nil
			}
		}
	}

	u := z.baseURL + "/swap/v1/price?" + z.buildQuery(req).Encode()
	body, err := z.doGet(ctx, u, nil)
	if err != nil {
		return models.PriceQuote{}, err
	}
	resp, err := z.parse(body)
	if err != nil {
		return models.PriceQuote{}, err
	}
	quote, err := z.toPriceQuote(req.ChainID, req.SellToken, resp)
	if err != nil {
		return models.PriceQuote{}, err
	}

	if z.cache != nil {
		if raw, err := json.Marshal(quote); err == nil {
			_ = z.cache.Set(ctx, key, raw, cache.TTLProviderPrice)
		}
	}
	return quote, nil
}

// GetQuote fetches a broadcastable transaction quote; taker address is
// required by the upstream API (not cached — a quote commits to calldata
// the caller is expected to use immediately).
func (z *ZeroXAdapter) GetQuote(ctx context.Context, req models.PriceRequest) (models.TxQuote, error) {
	if req.TakerAddress == "" {
		return models.TxQuote{}, apperror.ValidationFailed("takerAddress is required for getQuote")
	}
	u := z.baseURL + "/swap/v1/quote?" + z.buildQuery(req).Encode()
	body, err := z.doGet(ctx, u, nil)
	if err != nil {
		return models.TxQuote{}, err
	}
	resp, err := z.parse(body)
	if err != nil {
		return models.TxQuote{}, err
	}
	priceQuote, err := z.toPriceQuote(req.ChainID, req.SellToken, resp)
	if err != nil {
		return models.TxQuote{}, err
	}
	if !models.ValidCalldata(resp.Data) {
		return models.TxQuote{}, apperror.ParseResponse(z.name, "malformed calldata", nil)
	}
	return models.TxQuote{
		Sources:    priceQuote.Sources,
		SellAmount: priceQuote.SellAmount,
		BuyAmount:  priceQuote.BuyAmount,
		Gas:        priceQuote.Gas,
		GasPrice:   priceQuote.GasPrice,
		Value:      priceQuote.Value,
		Price:      priceQuote.Price,
		To:         resp.To,
		Data:       resp.Data,
	}, nil
}

// recomputedPrice recomputes buyAmount/sellAmount in arbitrary precision;
// the upstream's own "price" field is never trusted as-is.
func recomputedPrice(buyAmount, sellAmount string) (string, error) {
	buy, ok := new(big.Int).SetString(buyAmount, 10)
	if !ok {
		return "", fmt.Errorf("invalid buyAmount %q", buyAmount)
	}
	sell, ok := new(big.Int).SetString(sellAmount, 10)
	if !ok || sell.Sign() == 0 {
		return "", fmt.Errorf("invalid sellAmount %q", sellAmount)
	}
	r := new(big.Rat).SetFrac(buy, sell)
	return r.FloatString(18), nil
}
