package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dexmeta/aggregator/internal/config"
	"github.com/dexmeta/aggregator/internal/logger"
	"github.com/dexmeta/aggregator/internal/provider"
	"github.com/dexmeta/aggregator/internal/queue"
)

// Handler is the CloudWatch-Events-triggered producer side of the
// cache-warmer: one WarmJob enqueued per chain in the catalog, consumed by
// cmd/worker-handler's SQS-triggered Lambda.
type Handler struct {
	chains      *provider.ChainCatalog
	queueClient *queue.Client
	queueURL    string
}

// NewHandler wires the chain catalog and the SQS producer client.
func NewHandler(cfg *config.Config) (*Handler, error) {
	chains, _, err := config.LoadChainCatalog(cfg.Chains.CatalogPath)
	if err != nil {
		return nil, err
	}
	client, err := queue.NewClient(cfg.AWS.Region, cfg.Queue.Endpoint)
	if err != nil {
		return nil, err
	}
	return &Handler{
		chains:      provider.NewChainCatalog(chains),
		queueClient: client,
		queueURL:    cfg.Queue.WarmQueueURL,
	}, nil
}

// HandleRequest fires on the CloudWatch Events schedule and enqueues one
// WarmJob per catalog chain on every run so the worker refreshes that
// chain's gas-price cache entry.
func (h *Handler) HandleRequest(ctx context.Context, _ events.CloudWatchEvent) error {
	chains := h.chains.All()
	logger.Info("dispatching cache-warm jobs", logger.Fields{"chain_count": len(chains)})

	for _, chain := range chains {
		job := queue.WarmJob{ChainID: chain.ChainID}
		if err := h.queueClient.SendWarmJob(ctx, h.queueURL, job); err != nil {
			logger.Error("failed to enqueue warm job", logger.Fields{
				"error":    err.Error(),
				"chain_id": chain.ChainID,
			})
			return err
		}
	}
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
