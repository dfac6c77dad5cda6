package providers

import (
	"bytes"
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

// ParaSwapAdapter talks to the ParaSwap v5 API. Grounded on
// meta_aggregation_api/providers/paraswap_v5/paraswap_provider_v5.py: a
// two-step getQuote (GET /prices for the best route, then POST
// /transactions/{network} to build calldata against that route), and a
// two-level nested "bestRoute[].swaps[].swapExchanges[]" sources shape.
type ParaSwapAdapter struct {
	base
	cache cache.Backend
}

func NewParaSwapAdapter(baseURL, apiKey string, client *http.Client, cacheBackend cache.Backend) *ParaSwapAdapter {
	errorTable := []errorRule{
		{Substr: "allowance", Kind: apperror.KindInsufficientAllowance},
		{Substr: "not enough", Kind: apperror.KindInsufficientBalance},
		{Substr: "Invalid tokens", Kind: apperror.KindInvalidTokens},
		{Substr: "Token not found", Kind: apperror.KindInvalidTokens},
		{Substr: "Price Timeout", Kind: apperror.KindPriceUnavailable},
		{Substr: "computePrice Error", Kind: apperror.KindPriceUnavailable},
		{Substr: "ERROR_GETTING_PRICES", Kind: apperror.KindPriceUnavailable},
		{Substr: "Unable to process the transaction", Kind: apperror.KindEstimationFailed},
		{Substr: "ERROR_BUILDING_TRANSACTION", Kind: apperror.KindEstimationFailed},
	}
	return &ParaSwapAdapter{
		base:  newBase("paraswap", baseURL, apiKey, client, DefaultTimeout, errorTable),
		cache: cacheBackend,
	}
}

type paraswapSwapExchange struct {
	Exchange string  `json:"exchange"`
	Percent  float64 `json:"percent"`
}

type paraswapSwap struct {
	SwapExchanges []paraswapSwapExchange `json:"swapExchanges"`
}

type paraswapRoute struct {
	Swaps []paraswapSwap `json:"swaps"`
}

type paraswapPriceRoute struct {
	SrcAmount          string          `json:"srcAmount"`
	DestAmount         string          `json:"destAmount"`
	SrcDecimals        int             `json:"srcDecimals"`
	DestDecimals       int             `json:"destDecimals"`
	GasCost            string          `json:"gasCost"`
	TokenTransferProxy string          `json:"tokenTransferProxy"`
	Network            int64           `json:"network"`
	BestRoute          []paraswapRoute `json:"bestRoute"`
}

type paraswapPriceResponse struct {
	PriceRoute paraswapPriceRoute `json:"priceRoute"`
}

type paraswapTxResponse struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasPrice string `json:"gasPrice"`
	Gas      string `json:"gas"`
}

func paraswapSources(routes []paraswapRoute) []rawSource {
	var out []rawSource
	for _, route := range routes {
		for _, swap := range route.Swaps {
			for _, ex := range swap.SwapExchanges {
				out = append(out, rawSource{Name: ex.Exchange, Proportion: ex.Percent})
			}
		}
	}
	return out
}

func (p *ParaSwapAdapter) priceQuery(req models.PriceRequest) url.Values {
	q := url.Values{}
	q.Set("srcToken", req.SellToken)
	q.Set("destToken", req.BuyToken)
	q.Set("amount", req.SellAmount)
	q.Set("side", "SELL")
	q.Set("network", strconv.FormatInt(req.ChainID, 10))
	q.Set("otherExchangePrices", "false")
	return q
}

func (p *ParaSwapAdapter) fetchPriceRoute(ctx context.Context, req models.PriceRequest) (paraswapPriceRoute, error) {
	u := p.baseURL + "/prices?" + p.priceQuery(req).Encode()
	body, err := p.doGet(ctx, u, nil)
	if err != nil {
		return paraswapPriceRoute{}, err
	}
	var resp paraswapPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return paraswapPriceRoute{}, apperror.ParseResponse(p.name, "malformed paraswap response", err)
	}
	return resp.PriceRoute, nil
}

// GetPrice fetches and caches a price quote for 30 seconds.
func (p *ParaSwapAdapter) GetPrice(ctx context.Context, req models.PriceRequest) (models.PriceQuote, error) {
	key := cache.BuildKey("providers.paraswap.GetPrice", req.ChainID, req.BuyToken, req.SellToken, req.SellAmount, req.TakerAddress)
	if p.cache != nil {
		if raw, found, _ := p.cache.Get(ctx, key); found {
			var q models.PriceQuote
			if json.Unmarshal(raw, &q) == nil {
				return q, nil
			}
		}
	}

	route, err := p.fetchPriceRoute(ctx, req)
	if err != nil {
		return models.PriceQuote{}, err
	}
	price, err := recomputedPrice(route.DestAmount, route.SrcAmount)
	if err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(p.name, "failed to recompute price", err)
	}

	value := "0"
	if models.NormalizeAddress(req.SellToken) == models.NativeTokenSentinel {
		value = req.SellAmount
	}
	gasPrice := req.GasPrice
	if gasPrice == "" {
		gasPrice = "0"
	}

	quote := models.PriceQuote{
		Provider:        p.name,
		Sources:         NormalizeSources(paraswapSources(route.BestRoute)),
		SellAmount:      route.SrcAmount,
		BuyAmount:       route.DestAmount,
		Gas:             route.GasCost,
		GasPrice:        gasPrice,
		Value:           value,
		Price:           price,
		AllowanceTarget: route.TokenTransferProxy,
	}

	if p.cache != nil {
		if raw, err := json.Marshal(quote); err == nil {
			_ = p.cache.Set(ctx, key, raw, cache.TTLProviderPrice)
		}
	}
	return quote, nil
}

// GetQuote re-fetches the best route, then POSTs it to ParaSwap's
// transaction builder to obtain ready-to-broadcast calldata, matching the
// original's two-step get_swap_quote.
func (p *ParaSwapAdapter) GetQuote(ctx context.Context, req models.PriceRequest) (models.TxQuote, error) {
	if req.TakerAddress == "" {
		return models.TxQuote{}, apperror.ValidationFailed("takerAddress is required for getQuote")
	}
	route, err := p.fetchPriceRoute(ctx, req)
	if err != nil {
		return models.TxQuote{}, err
	}

	payload := map[string]interface{}{
		"srcToken":     req.SellToken,
		"destToken":    req.BuyToken,
		"srcAmount":    req.SellAmount,
		"userAddress":  req.TakerAddress,
		"srcDecimals":  route.SrcDecimals,
		"destDecimals": route.DestDecimals,
	}
	if req.SlippagePercentage != nil {
		payload["slippage"] = int(*req.SlippagePercentage * 10000)
	} else {
		payload["destAmount"] = route.DestAmount
	}
	if req.BuyTokenPercentageFee != nil {
		payload["partnerFeeBps"] = int(*req.BuyTokenPercentageFee * 10000)
	}
	if req.FeeRecipient != "" {
		payload["partnerAddress"] = req.FeeRecipient
	}

	txURL := fmt.Sprintf("%s/transactions/%d", p.baseURL, route.Network)
	body, err := p.doPost(ctx, txURL, payload)
	if err != nil {
		return models.TxQuote{}, err
	}
	var tx paraswapTxResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return models.TxQuote{}, apperror.ParseResponse(p.name, "malformed paraswap transaction response", err)
	}
	if !models.ValidCalldata(tx.Data) {
		return models.TxQuote{}, apperror.ParseResponse(p.name, "malformed calldata", nil)
	}

	price, err := recomputedPrice(route.DestAmount, route.SrcAmount)
	if err != nil {
		return models.TxQuote{}, apperror.ParseResponse(p.name, "failed to recompute price", err)
	}

	return models.TxQuote{
		Sources:    NormalizeSources(paraswapSources(route.BestRoute)),
		SellAmount: route.SrcAmount,
		BuyAmount:  route.DestAmount,
		Gas:        tx.Gas,
		GasPrice:   tx.GasPrice,
		Value:      tx.Value,
		Price:      price,
		To:         tx.To,
		Data:       tx.Data,
	}, nil
}

// doPost issues a POST with a JSON body under the adapter's timeout,
// reusing the shared base's status classification.
func (p *ParaSwapAdapter) doPost(ctx context.Context, rawURL string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.ValidationFailed("failed to encode request body")
	}
	return p.doRequest(ctx, http.MethodPost, rawURL, bytes.NewReader(raw), map[string]string{"Content-Type": "application/json"})
}
