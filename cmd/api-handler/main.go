package main

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/chainclient"
	"github.com/dexmeta/aggregator/internal/config"
	"github.com/dexmeta/aggregator/internal/database"
	"github.com/dexmeta/aggregator/internal/engine"
	"github.com/dexmeta/aggregator/internal/gas"
	"github.com/dexmeta/aggregator/internal/limitorder"
	"github.com/dexmeta/aggregator/internal/logger"
	"github.com/dexmeta/aggregator/internal/models"
	"github.com/dexmeta/aggregator/internal/provider"
	"github.com/dexmeta/aggregator/internal/providers"
	"github.com/dexmeta/aggregator/internal/tokeninfo"
	"github.com/dexmeta/aggregator/internal/validator"
)

// Handler manages the API Lambda's request routing and the engine it was
// built with at cold start.
type Handler struct {
	eng     *engine.Engine
	orders  *limitorder.Facade
	gasSvc  *gas.Service
	catalog *provider.ChainCatalog
}

// NewHandler wires the aggregation engine: provider registry, chain
// catalog, chain client, token info, gas service, and cache backend.
//
// The ChainClient and TokenInfo ports are boundary collaborators per §4's
// port contract — their JSON-RPC wire details belong to the deployment,
// not the core — so the in-process mocks stand in here until a real RPC
// backend is supplied via the same interfaces.
func NewHandler(cfg *config.Config) (*Handler, error) {
	descriptors, err := config.LoadProviderDescriptors(cfg.Providers.DescriptorPath)
	if err != nil {
		return nil, err
	}
	chains, wrappedNative, err := config.LoadChainCatalog(cfg.Chains.CatalogPath)
	if err != nil {
		return nil, err
	}
	catalog := provider.NewChainCatalog(chains)

	cacheBackend, err := buildCacheBackend(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.DefaultTimeout}

	adapters := map[string]provider.Provider{
		"0x":        providers.NewZeroXAdapter(cfg.Providers.BaseURLs["0x"], cfg.Providers.APIKeys["0x"], httpClient, wrappedNative, cacheBackend),
		"1inch":     providers.NewOneInchAdapter(cfg.Providers.BaseURLs["1inch"], cfg.Providers.APIKeys["1inch"], httpClient, cacheBackend),
		"kyberswap": providers.NewKyberSwapAdapter(cfg.Providers.BaseURLs["kyberswap"], cfg.Providers.APIKeys["kyberswap"], httpClient, cacheBackend),
		"paraswap":  providers.NewParaSwapAdapter(cfg.Providers.BaseURLs["paraswap"], cfg.Providers.APIKeys["paraswap"], httpClient, cacheBackend),
	}
	registry := provider.NewRegistry(descriptors, adapters)

	crossAdapters := map[string]provider.CrossChainProvider{
		"lifi": providers.NewLiFiAdapter(cfg.Providers.BaseURLs["lifi"], cfg.Providers.APIKeys["lifi"], httpClient),
	}
	crossRegistry := provider.NewCrossChainRegistry([]string{"lifi"}, crossAdapters)

	chainClient := chainclient.NewMockChainClient(big.NewInt(30_000_000_000))
	tokenInfo := tokeninfo.NewMockTokenInfo(chains)
	gasSvc := gas.NewService(catalog, chainClient, cacheBackend)

	eng := engine.New(registry, crossRegistry, catalog, chainClient, tokenInfo, gasSvc, cacheBackend)
	orders := limitorder.New(registry)

	return &Handler{eng: eng, orders: orders, gasSvc: gasSvc, catalog: catalog}, nil
}

func buildCacheBackend(cfg *config.Config) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case "dynamodb":
		return database.NewDynamoCacheBackend(cfg.AWS.Region, cfg.Cache.TableName, cfg.Cache.Endpoint)
	default:
		return cache.NewMemoryBackend(), nil
	}
}

// HandleRequest routes an API Gateway request to the matching engine
// operation (spec §6's HTTP surface).
func (h *Handler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := uuid.New().String()
	logger.Info("received API request", logger.Fields{
		"request_id": requestID,
		"path":       request.Path,
		"method":     request.HTTPMethod,
	})

	if request.HTTPMethod != http.MethodGet {
		return errorResponse(apperror.ValidationFailed("unsupported method"))
	}

	switch {
	case strings.HasPrefix(request.Path, "/crosschain/price"):
		return h.handleCrossChainPrice(ctx, request)
	case strings.HasPrefix(request.Path, "/crosschain/quote"):
		return h.handleCrossChainQuote(ctx, request)
	case strings.HasSuffix(request.Path, "/price"):
		return h.handleMetaPrice(ctx, request)
	case strings.HasSuffix(request.Path, "/quote"):
		return h.handleMetaQuote(ctx, request)
	case strings.Contains(request.Path, "/limit-orders"):
		return h.handleLimitOrders(ctx, request)
	case strings.HasPrefix(request.Path, "/gas/"):
		return h.handleGas(ctx, request)
	case strings.HasPrefix(request.Path, "/info"):
		return h.handleInfo(request)
	default:
		return errorResponse(apperror.ValidationFailed("unknown endpoint"))
	}
}

// handleGas serves GET /gas/{chainId}: the gas service's current tier
// report for the chain, per spec §6.
func (h *Handler) handleGas(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	chainID, err := strconv.ParseInt(lastPathSegment(request.Path), 10, 64)
	if err != nil {
		return errorResponse(apperror.ValidationFailed("chainId must be an integer"))
	}
	report, err := h.gasSvc.GetGasPrices(ctx, chainID)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, report)
}

// handleInfo serves GET /info and GET /info/{chainId}: the static chain
// catalog, in full or filtered to one chain, per spec §6.
func (h *Handler) handleInfo(request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if request.Path == "/info" || strings.HasSuffix(request.Path, "/info") {
		return jsonResponse(http.StatusOK, h.catalog.All())
	}
	chainID, err := strconv.ParseInt(lastPathSegment(request.Path), 10, 64)
	if err != nil {
		return errorResponse(apperror.ValidationFailed("chainId must be an integer"))
	}
	chain, ok := h.catalog.GetByID(chainID)
	if !ok {
		return errorResponse(apperror.ValidationFailed("unknown chain"))
	}
	return jsonResponse(http.StatusOK, chain)
}

func lastPathSegment(path string) string {
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	return parts[len(parts)-1]
}

// parseCrossChainPriceRequest extends parsePriceRequest with the
// destination chain id spec §6's crosschain surface adds.
func parseCrossChainPriceRequest(q map[string]string) (models.CrossChainPriceRequest, error) {
	req, err := parsePriceRequest(q)
	if err != nil {
		return models.CrossChainPriceRequest{}, err
	}
	chainIDTo, err := strconv.ParseInt(q["chainIdTo"], 10, 64)
	if err != nil {
		return models.CrossChainPriceRequest{}, apperror.ValidationFailed("chainIdTo must be an integer")
	}
	return models.CrossChainPriceRequest{PriceRequest: req, ChainIDTo: chainIDTo}, nil
}

func parsePriceRequest(q map[string]string) (models.PriceRequest, error) {
	chainID, err := strconv.ParseInt(q["chainId"], 10, 64)
	if err != nil {
		return models.PriceRequest{}, apperror.ValidationFailed("chainId must be an integer")
	}
	req := models.PriceRequest{
		BuyToken:     q["buyToken"],
		SellToken:    q["sellToken"],
		SellAmount:   q["sellAmount"],
		ChainID:      chainID,
		GasPrice:     q["gasPrice"],
		TakerAddress: q["takerAddress"],
		FeeRecipient: q["feeRecipient"],
	}
	if s, ok := q["slippagePercentage"]; ok && s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.PriceRequest{}, apperror.ValidationFailed("slippagePercentage must be a number")
		}
		req.SlippagePercentage = &v
	}
	if err := validator.ValidatePriceRequest(req); err != nil {
		return models.PriceRequest{}, err
	}
	return req, nil
}

func (h *Handler) handleMetaPrice(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := parsePriceRequest(request.QueryStringParameters)
	if err != nil {
		return errorResponse(err)
	}

	if providerName := request.QueryStringParameters["provider"]; providerName != "" {
		price, err := h.eng.GetProviderPrice(ctx, providerName, req)
		if err != nil {
			return errorResponse(err)
		}
		return jsonResponse(http.StatusOK, price)
	}

	prices, err := h.eng.GetMetaPrice(ctx, req)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, prices)
}

func (h *Handler) handleMetaQuote(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := parsePriceRequest(request.QueryStringParameters)
	if err != nil {
		return errorResponse(err)
	}
	providerName := request.QueryStringParameters["provider"]
	if providerName == "" {
		return errorResponse(apperror.ValidationFailed("provider is required for getQuote"))
	}
	quote, err := h.eng.GetMetaSwapQuote(ctx, providerName, req)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, quote)
}

func (h *Handler) handleCrossChainPrice(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := parseCrossChainPriceRequest(request.QueryStringParameters)
	if err != nil {
		return errorResponse(err)
	}
	providerName := request.QueryStringParameters["provider"]
	if providerName == "" {
		return errorResponse(apperror.ValidationFailed("provider is required for cross-chain price"))
	}
	price, err := h.eng.GetCrossChainProviderPrice(ctx, providerName, req)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, price)
}

func (h *Handler) handleCrossChainQuote(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := parseCrossChainPriceRequest(request.QueryStringParameters)
	if err != nil {
		return errorResponse(err)
	}
	providerName := request.QueryStringParameters["provider"]
	if providerName == "" {
		return errorResponse(apperror.ValidationFailed("provider is required for cross-chain quote"))
	}
	quote, err := h.eng.GetCrossChainMetaSwapQuote(ctx, providerName, req)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, quote)
}

func (h *Handler) handleLimitOrders(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := request.QueryStringParameters
	chainID, err := strconv.ParseInt(q["chainId"], 10, 64)
	if err != nil {
		return errorResponse(apperror.ValidationFailed("chainId must be an integer"))
	}
	providerName := q["provider"]

	if hash := q["orderHash"]; hash != "" {
		order, err := h.orders.GetByHash(ctx, chainID, providerName, hash)
		if err != nil {
			return errorResponse(err)
		}
		return jsonResponse(http.StatusOK, order)
	}

	var statuses []string
	if raw := q["statuses"]; raw != "" {
		statuses = strings.Split(raw, ",")
	}
	orders, err := h.orders.ListByTrader(ctx, chainID, providerName, q["trader"], q["makerToken"], q["takerToken"], statuses)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, orders)
}

func jsonResponse(status int, body interface{}) (events.APIGatewayProxyResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return errorResponse(apperror.ProviderUnspecified("", "failed to marshal response", err))
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(raw),
	}, nil
}

func errorResponse(err error) (events.APIGatewayProxyResponse, error) {
	appErr, ok := err.(*apperror.Error)
	if !ok {
		appErr = apperror.ProviderUnspecified("", err.Error(), err)
	}
	logger.Error("request failed", appErr.LogFields())
	raw, _ := json.Marshal(appErr.ToBody())
	return events.APIGatewayProxyResponse{
		StatusCode: appErr.StatusCode(),
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(raw),
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", logger.Fields{"error": err.Error()})
		panic(err)
	}

	log := logger.NewFromString(cfg.Logging.Level)
	logger.SetDefault(log)

	handler, err := NewHandler(cfg)
	if err != nil {
		logger.Error("failed to create handler", logger.Fields{"error": err.Error()})
		panic(err)
	}

	lambda.Start(handler.HandleRequest)
}
