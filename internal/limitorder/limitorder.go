// Package limitorder implements the thin limit-order facade (C11): it
// dispatches to the named adapter's limit-order capability and passes the
// result through verbatim. It never normalizes limit-order payloads.
package limitorder

import (
	"context"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/provider"
)

// Facade routes limit-order operations to capability-gated adapters.
type Facade struct {
	registry *provider.Registry
}

// New builds a limit-order facade over the single-chain registry.
func New(registry *provider.Registry) *Facade {
	return &Facade{registry: registry}
}

func (f *Facade) limitOrderAdapter(providerName string) (provider.LimitOrderProvider, error) {
	p, ok := f.registry.Get(providerName)
	if !ok {
		return nil, apperror.ProviderNotFound(providerName, "unknown provider")
	}
	lp, ok := p.(provider.LimitOrderProvider)
	if !ok {
		return nil, apperror.ProviderNotFound(providerName, "provider does not support limit orders")
	}
	return lp, nil
}

// ListByTrader forwards to the adapter's ListOrdersByTrader.
func (f *Facade) ListByTrader(ctx context.Context, chainID int64, providerName, trader, makerToken, takerToken string, statuses []string) (interface{}, error) {
	lp, err := f.limitOrderAdapter(providerName)
	if err != nil {
		return nil, err
	}
	return lp.ListOrdersByTrader(ctx, chainID, trader, makerToken, takerToken, statuses)
}

// GetByHash forwards to the adapter's GetOrderByHash.
func (f *Facade) GetByHash(ctx context.Context, chainID int64, providerName, orderHash string) (interface{}, error) {
	lp, err := f.limitOrderAdapter(providerName)
	if err != nil {
		return nil, err
	}
	return lp.GetOrderByHash(ctx, chainID, orderHash)
}

// Submit forwards to the adapter's PostLimitOrder.
func (f *Facade) Submit(ctx context.Context, chainID int64, providerName, orderHash, signature string, orderData map[string]interface{}) (interface{}, error) {
	lp, err := f.limitOrderAdapter(providerName)
	if err != nil {
		return nil, err
	}
	return lp.PostLimitOrder(ctx, chainID, orderHash, signature, orderData)
}
