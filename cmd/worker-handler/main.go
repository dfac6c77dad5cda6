package main

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/chainclient"
	"github.com/dexmeta/aggregator/internal/config"
	"github.com/dexmeta/aggregator/internal/database"
	"github.com/dexmeta/aggregator/internal/gas"
	"github.com/dexmeta/aggregator/internal/logger"
	"github.com/dexmeta/aggregator/internal/provider"
	"github.com/dexmeta/aggregator/internal/queue"
	"github.com/dexmeta/aggregator/internal/tokeninfo"
)

// Handler refreshes the gas-price cache entry of a chain, triggered by one
// SQS message per chain, and also queries the chain's native-token price;
// that price is not cached, since TokenInfo has no cache layer.
type Handler struct {
	chains    *provider.ChainCatalog
	gasSvc    *gas.Service
	tokenInfo tokeninfo.TokenInfo
	cache     cache.Backend
	cfg       *config.Config
}

// NewHandler wires the same gas-pricing subsystem the API handler uses,
// so a warmed cache entry is read back by the next price request under
// the identical cache key.
func NewHandler(cfg *config.Config) (*Handler, error) {
	chains, _, err := config.LoadChainCatalog(cfg.Chains.CatalogPath)
	if err != nil {
		return nil, err
	}
	catalog := provider.NewChainCatalog(chains)

	cacheBackend, err := buildCacheBackend(cfg)
	if err != nil {
		return nil, err
	}

	chainClient := chainclient.NewMockChainClient(big.NewInt(30_000_000_000))
	tokenInfo := tokeninfo.NewMockTokenInfo(chains)
	gasSvc := gas.NewService(catalog, chainClient, cacheBackend)

	return &Handler{
		chains:    catalog,
		gasSvc:    gasSvc,
		tokenInfo: tokenInfo,
		cache:     cacheBackend,
		cfg:       cfg,
	}, nil
}

func buildCacheBackend(cfg *config.Config) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case "dynamodb":
		return database.NewDynamoCacheBackend(cfg.AWS.Region, cfg.Cache.TableName, cfg.Cache.Endpoint)
	default:
		return cache.NewMemoryBackend(), nil
	}
}

// HandleRequest processes SQS messages, each naming one chain to warm.
func (h *Handler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	logger.Info("received warm-job batch", logger.Fields{"record_count": len(sqsEvent.Records)})

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			logger.Error("failed to process warm job", logger.Fields{
				"error":      err.Error(),
				"message_id": record.MessageId,
			})
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var job queue.WarmJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		logger.Error("failed to unmarshal warm job", logger.Fields{"error": err.Error()})
		return err
	}

	chain, ok := h.chains.GetByID(job.ChainID)
	if !ok {
		logger.Warn("warm job for unknown chain, skipping", logger.Fields{"chain_id": job.ChainID})
		return nil
	}

	// Refresh the gas-price cache for the chain; GetGasPrices itself writes
	// through to cache.Backend under the same key the engine reads.
	if _, err := h.gasSvc.GetGasPrices(ctx, chain.ChainID); err != nil {
		logger.Error("failed to refresh gas prices", logger.Fields{
			"error":    err.Error(),
			"chain_id": chain.ChainID,
		})
		return err
	}

	// Query the native-token price for the chain. TokenInfo has no cache
	// layer, so this call stores nothing; a failure still fails the job.
	if _, err := h.tokenInfo.NativePrice(ctx, chain.ChainID, chain.NativeToken.Address); err != nil {
		logger.Error("failed to refresh native token price", logger.Fields{
			"error":    err.Error(),
			"chain_id": chain.ChainID,
		})
		return err
	}

	logger.Info("warmed chain caches", logger.Fields{"chain_id": chain.ChainID})
	return nil
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
