package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/models"
)

// LiFiAdapter talks to the LI.FI cross-chain routing API. Grounded on
// meta_aggregation_api/providers/lifi_v1/lifi_provider_v1.py: a POST
// /v1/advanced/routes request carrying fromChainId/toChainId/
// fromTokenAddress/toTokenAddress/fromAmount, returning a "routes[]" list
// where each route nests its own "steps[]" as the sources list and its own
// decimals per leg (cross-chain routes span two distinct tokens, so
// decimals aren't resolved centrally the way a single-chain quote's are).
// LiFi prices its own gas into each route, so it does not require the
// engine to resolve a base gas price up front.
type LiFiAdapter struct {
	base
}

func NewLiFiAdapter(baseURL, apiKey string, client *http.Client) *LiFiAdapter {
	errorTable := []errorRule{
		{Status: 400, Kind: apperror.KindEstimationFailed},
		{Status: 404, Kind: apperror.KindPriceUnavailable},
	}
	return &LiFiAdapter{base: newBase("lifi", baseURL, apiKey, client, DefaultTimeout, errorTable)}
}

// RequiresGasPrice reports false: LiFi's route response already carries a
// gas estimate priced by the bridge/DEX legs it selects.
func (l *LiFiAdapter) RequiresGasPrice() bool { return false }

type lifiToken struct {
	Decimals int `json:"decimals"`
}

type lifiRoute struct {
	ID         string     `json:"id"`
	FromAmount string     `json:"fromAmount"`
	ToAmount   string     `json:"toAmount"`
	FromToken  lifiToken  `json:"fromToken"`
	ToToken    lifiToken  `json:"toToken"`
	Tags       []string   `json:"tags"`
	Steps      []lifiStep `json:"steps"`
}

type lifiStep struct {
	Tool string `json:"tool"`
}

type lifiRoutesResponse struct {
	Routes []lifiRoute `json:"routes"`
}

func (l *LiFiAdapter) requestBody(req models.CrossChainPriceRequest) map[string]interface{} {
	body := map[string]interface{}{
		"fromChainId":      req.ChainID,
		"fromTokenAddress": req.SellToken,
		"toChainId":        req.ChainIDTo,
		"toTokenAddress":   req.BuyToken,
		"fromAmount":       req.SellAmount,
		"fromAddress":      req.TakerAddress,
		"toAddress":        req.TakerAddress,
		"saveGas":          0,
		"gasInclude":       0,
	}
	return body
}

func (l *LiFiAdapter) fetchRoutes(ctx context.Context, req models.CrossChainPriceRequest) (lifiRoutesResponse, error) {
	raw, err := json.Marshal(l.requestBody(req))
	if err != nil {
		return lifiRoutesResponse{}, apperror.ValidationFailed("failed to encode request body")
	}
	body, err := l.doRequest(ctx, http.MethodPost, l.baseURL+"/v1/advanced/routes/", bytes.NewReader(raw), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return lifiRoutesResponse{}, err
	}
	var resp lifiRoutesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return lifiRoutesResponse{}, apperror.ParseResponse(l.name, "malformed lifi response", err)
	}
	if len(resp.Routes) == 0 {
		return lifiRoutesResponse{}, apperror.PriceUnavailable(l.name, "no routes returned")
	}
	return resp, nil
}

// bestRoute picks the route LiFi tagged RECOMMENDED, falling back to the
// first route, matching is_best's source in _convert_response_from_swap_price.
func bestRoute(routes []lifiRoute) lifiRoute {
	for _, r := range routes {
		for _, tag := range r.Tags {
			if tag == "RECOMMENDED" {
				return r
			}
		}
	}
	return routes[0]
}

func lifiSources(steps []lifiStep) []rawSource {
	var out []rawSource
	for _, s := range steps {
		out = append(out, rawSource{Name: s.Tool, Proportion: 100})
	}
	return out
}

// CrossChainGetPrice fetches candidate routes and returns the recommended
// one as the uniform PriceQuote.
func (l *LiFiAdapter) CrossChainGetPrice(ctx context.Context, req models.CrossChainPriceRequest) (models.PriceQuote, error) {
	resp, err := l.fetchRoutes(ctx, req)
	if err != nil {
		return models.PriceQuote{}, err
	}
	route := bestRoute(resp.Routes)
	price, err := recomputedPrice(route.ToAmount, route.FromAmount)
	if err != nil {
		return models.PriceQuote{}, apperror.ParseResponse(l.name, "failed to recompute price", err)
	}
	value := "0"
	if models.NormalizeAddress(req.SellToken) == models.NativeTokenSentinel {
		value = route.FromAmount
	}
	return models.PriceQuote{
		Provider:   l.name,
		Sources:    NormalizeSources(lifiSources(route.Steps)),
		SellAmount: route.FromAmount,
		BuyAmount:  route.ToAmount,
		Gas:        "0",
		GasPrice:   "0",
		Value:      value,
		Price:      price,
	}, nil
}

// CrossChainGetQuote dispatches the same route request and returns the
// recommended route's amounts, sources, price and value; the TxQuote's To
// and Data are left empty, so no broadcastable calldata is returned.
func (l *LiFiAdapter) CrossChainGetQuote(ctx context.Context, req models.CrossChainPriceRequest) (models.TxQuote, error) {
	if req.TakerAddress == "" {
		return models.TxQuote{}, apperror.ValidationFailed("takerAddress is required for getQuote")
	}
	resp, err := l.fetchRoutes(ctx, req)
	if err != nil {
		return models.TxQuote{}, err
	}
	route := bestRoute(resp.Routes)
	price, err := recomputedPrice(route.ToAmount, route.FromAmount)
	if err != nil {
		return models.TxQuote{}, apperror.ParseResponse(l.name, "failed to recompute price", err)
	}
	value := "0"
	if models.NormalizeAddress(req.SellToken) == models.NativeTokenSentinel {
		value = route.FromAmount
	}
	return models.TxQuote{
		Sources:    NormalizeSources(lifiSources(route.Steps)),
		SellAmount: route.FromAmount,
		BuyAmount:  route.ToAmount,
		Gas:        "0",
		GasPrice:   "0",
		Value:      value,
		Price:      price,
	}, nil
}
